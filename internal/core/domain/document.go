package domain

import (
	"fmt"
	"os"
)

// Document is one uploaded PDF. Path points into the owning session's
// storage area once persisted.
type Document struct {
	DisplayName string `json:"filename"`
	StorageName string `json:"-"`
	SizeBytes   int64  `json:"sizeBytes"`
	Path        string `json:"-"`
}

// Content loads the raw document bytes from disk.
func (d Document) Content() ([]byte, error) {
	raw, err := os.ReadFile(d.Path)
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", d.StorageName, err)
	}
	return raw, nil
}

// Upload is a file received by the transport and spooled to a temporary
// location, not yet owned by any session.
type Upload struct {
	Filename string
	TempPath string
	Size     int64
}

type Session struct {
	ID        string     `json:"uploadId"`
	Documents []Document `json:"documents"`
}

type SessionBranch string

const (
	BranchNewUpload SessionBranch = "new_upload"
	BranchFollowUp  SessionBranch = "follow_up"
)
