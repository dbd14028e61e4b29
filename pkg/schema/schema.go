package schema

import (
	"errors"
	"fmt"
	"strings"
	"time"

	// Packages
	uuid "github.com/google/uuid"
)

////////////////////////////////////////////////////////////////////////////////
// CONSTANTS

const (
	SchemaName = "transfer"

	// AttrTransferID is the object metadata key used to stamp the transfer
	// identifier onto stored objects. Lowercase for S3 compatibility.
	AttrTransferID = "transfer-id"

	// AttrLastModified is the metadata key used to store the object modification time.
	AttrLastModified = "last-modified"
)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

var (
	// ErrTransferNotFound is returned by clients when the publisher has no
	// knowledge of a transfer identifier. It is never retried.
	ErrTransferNotFound = errors.New("transfer not found")
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// NewTransferID returns a new identifier made of the current time in
// milliseconds and a random suffix, for example "1760000000000-3f2a9c1e".
func NewTransferID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), suffix)
}

// IsTransferID reports whether id is acceptable as a transfer identifier:
// between 1 and 128 characters of letters, digits, '-', '_' or '.'.
func IsTransferID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}
