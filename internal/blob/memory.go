package blob

import memorystore "micdash/internal/infra/blob/memory"

// NewMemory returns a process-local store.
func NewMemory() Store { return memorystore.New() }
