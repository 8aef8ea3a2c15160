package blob

import "micdash/internal/infra/blob/fs"

// NewFilesystem returns a store rooted at root; an empty root means
// ./blobdata.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}
