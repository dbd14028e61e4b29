package schema

import (
	"io"
	"time"

	// Packages
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// CONSTANTS

// MaxListLimit is the maximum number of objects or records returned in a
// single list call. Clients paginate using Offset for larger sets.
const MaxListLimit = 1000

////////////////////////////////////////////////////////////////////////////////
// TYPES

type CreateObjectRequest struct {
	Path        string
	Body        io.Reader  `json:"-"`
	ContentType string     // optional: MIME type of the object
	ModTime     time.Time  // optional: modification time (stored as metadata)
	Meta        ObjectMeta // optional: user-defined metadata
}

// ObjectMeta is a string key-value map for user-defined object metadata.
// Keys should be lowercase, as S3 normalizes all metadata keys to lowercase.
type ObjectMeta map[string]string

// Object is a stored file in a backend.
type Object struct {
	Name        string     `json:"name,omitempty"`
	Path        string     `json:"path,omitempty"`
	Size        int64      `json:"size"`
	ModTime     time.Time  `json:"modtime,omitzero"`
	ContentType string     `json:"type,omitempty"`
	ETag        string     `json:"etag,omitempty"`
	Meta        ObjectMeta `json:"meta,omitempty"`
}

type GetObjectRequest struct {
	Path string
}

type ReadObjectRequest struct {
	GetObjectRequest
}

type DeleteObjectRequest struct {
	Path string
}

type ListObjectsRequest struct {
	Path      string `json:"path,omitempty"`      // optional path prefix within the backend
	Recursive bool   `json:"recursive,omitempty"` // list all nested objects rather than immediate children
	Offset    int    `json:"offset,omitempty"`
	Limit     int    `json:"limit,omitempty"` // 0 returns the count only
}

type ListObjectsResponse struct {
	Name  string   `json:"name,omitempty"`
	Count int      `json:"count"`
	Body  []Object `json:"body,omitempty"`
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (o Object) String() string {
	return types.Stringify(o)
}

func (r CreateObjectRequest) String() string {
	return types.Stringify(r)
}

func (r ListObjectsRequest) String() string {
	return types.Stringify(r)
}

func (r ListObjectsResponse) String() string {
	return types.Stringify(r)
}
