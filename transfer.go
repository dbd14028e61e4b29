package transfer

import (
	"context"
	"io"
	"net/url"

	// Packages
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// INTERFACES

// Backend is remote storage for transferred files.
type Backend interface {
	io.Closer

	// Name returns the name of the backend
	Name() string

	// URL returns the backend destination URL without credentials
	URL() *url.URL

	// Key returns the storage key for a path, or empty string when the path
	// is not handled by this backend
	Key(path string) string

	// Create object in the backend
	CreateObject(context.Context, schema.CreateObjectRequest) (*schema.Object, error)

	// Get object metadata from the backend
	GetObject(context.Context, schema.GetObjectRequest) (*schema.Object, error)

	// Read object content from the backend. Caller must close the returned reader.
	ReadObject(context.Context, schema.ReadObjectRequest) (io.ReadCloser, *schema.Object, error)

	// List objects in the backend
	ListObjects(context.Context, schema.ListObjectsRequest) (*schema.ListObjectsResponse, error)

	// Delete a single object from the backend
	DeleteObject(context.Context, schema.DeleteObjectRequest) (*schema.Object, error)
}

// Persister records a stored file in the metadata service. A record that
// exists is the source of truth that an upload was saved.
type Persister interface {
	CreateRecord(context.Context, schema.RecordMeta) (*schema.Record, error)
}

// Channel opens push streams of progress events for a transfer. Open returns
// schema.ErrTransferNotFound when the transfer is unknown; any other error
// is treated as transient.
type Channel interface {
	Open(ctx context.Context, transferID string) (Stream, error)
}

// Stream is one open push connection. Next blocks until an event arrives and
// returns io.EOF when the server closes the stream.
type Stream interface {
	io.Closer
	Next(ctx context.Context) (schema.ProgressEvent, error)
}
