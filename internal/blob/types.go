// Package blob is the only entry point to artifact storage. Callers depend on
// Store and pick a backend through Open; the driver packages under
// internal/infra/blob stay private to this package.
package blob

import "micdash/internal/blob/core"

type (
	Driver     = core.Driver
	PutOptions = core.PutOptions
	Info       = core.Info
	Store      = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrNotFound = core.ErrNotFound
	ErrExists   = core.ErrExists
)
