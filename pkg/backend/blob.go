package backend

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"syscall"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	types "github.com/mutablelogic/go-server/pkg/types"
	transfer "github.com/mutablelogic/go-transfer"
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
	blob "gocloud.dev/blob"
	s3blob "gocloud.dev/blob/s3blob"
	gcerrors "gocloud.dev/gcerrors"

	// Drivers
	_ "gocloud.dev/blob/fileblob" // file:// URLs
	_ "gocloud.dev/blob/memblob"  // mem:// URLs
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type blobbackend struct {
	*opt
	bucket       *blob.Bucket
	prefix       string // URL path used for matching/stripping in Key()
	bucketPrefix string // key prefix for bucket operations (empty for file://)
}

var _ transfer.Backend = (*blobbackend)(nil)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewBlobBackend creates a new blob backend using Go CDK.
// Supported URL schemes: s3://, file://, mem://
// Examples:
//   - "s3://my-bucket?region=us-east-1"
//   - "file://media/path/to/directory"
//   - "mem://scratch"
//
// The URL host is the backend name. For S3 URLs an aws.Config can be
// provided with WithAWSConfig; credentials never appear in the URL.
func NewBlobBackend(ctx context.Context, u string, opts ...Opt) (*blobbackend, error) {
	self := new(blobbackend)

	// Set the options
	if url, err := url.Parse(u); err != nil {
		return nil, err
	} else if opt, err := apply(url, opts...); err != nil {
		return nil, err
	} else {
		self.opt = opt
	}

	// Validate the backend name
	if !types.IsIdentifier(self.url.Host) {
		return nil, fmt.Errorf("backend name %q must be a valid identifier (letter, digits, underscores, hyphens; max 64 chars)", self.url.Host)
	}

	// For file:// the path is the bucket root directory, not a key discriminator
	self.prefix = strings.TrimSuffix(self.url.Path, "/")
	if self.url.Scheme != "file" {
		self.bucketPrefix = strings.TrimPrefix(self.prefix, "/")
	}

	// Open the bucket
	var bucket *blob.Bucket
	var err error
	switch {
	case self.url.Scheme == "s3" && self.awsConfig != nil:
		client := s3blob.Dial(self.resolveAWSConfig())
		bucket, err = s3blob.OpenBucket(ctx, client, self.url.Host, nil)
	case self.url.Scheme == "file":
		openURL := &url.URL{Scheme: "file", Path: self.url.Path, RawQuery: self.url.RawQuery}
		bucket, err = blob.OpenBucket(ctx, openURL.String())
	default:
		openURL := *self.url
		openURL.Path = ""
		openURL.RawPath = ""
		bucket, err = blob.OpenBucket(ctx, openURL.String())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket: %w", err)
	}
	self.bucket = bucket

	return self, nil
}

// NewFileBackend creates a file-based backend with a logical name.
// dir must be an absolute path.
func NewFileBackend(ctx context.Context, name, dir string, opts ...Opt) (*blobbackend, error) {
	if !path.IsAbs(dir) {
		return nil, fmt.Errorf("backend dir %q must be an absolute path", dir)
	}
	return NewBlobBackend(ctx, "file://"+name+path.Clean(dir), opts...)
}

// Close the backend
func (b *blobbackend) Close() error {
	var result error
	if b.bucket != nil {
		result = errors.Join(result, b.bucket.Close())
		b.bucket = nil
	}
	return result
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Name returns the name of the backend (the host component of the URL)
func (b *blobbackend) Name() string {
	return b.url.Host
}

// URL returns the backend URL. Query parameters carry non-credential
// details only.
func (b *blobbackend) URL() *url.URL {
	u := *b.url
	return &u
}

// Key returns the storage key for a path within this backend.
// Returns empty string if the path is not handled (prefix mismatch for s3/mem)
// and "/" for the root.
func (b *blobbackend) Key(p string) string {
	if p == "" {
		p = "/"
	}
	p = cleanPath(p)

	// For file:// or an empty prefix the path is the key
	if b.url.Scheme == "file" || b.prefix == "" {
		return p
	}

	// Strip prefix, or reject the path if it doesn't match
	if p != b.prefix && !strings.HasPrefix(p, b.prefix+"/") {
		return ""
	}
	return cleanPath(strings.TrimPrefix(p, b.prefix))
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// key returns the blob storage key for a logical path
func (b *blobbackend) key(p string) string {
	return b.storageKey(b.Key(p))
}

// storageKey converts a relative key (as returned by Key) to the blob storage
// key by prepending the bucket prefix.
func (b *blobbackend) storageKey(key string) string {
	sk := strings.TrimPrefix(key, "/")
	if b.bucketPrefix != "" {
		if sk == "" {
			return b.bucketPrefix + "/"
		}
		return b.bucketPrefix + "/" + sk
	}
	return sk
}

// pathFromStorageKey converts a blob storage key back to a logical path
func (b *blobbackend) pathFromStorageKey(sk string) string {
	if b.bucketPrefix != "" {
		sk = strings.TrimPrefix(sk, b.bucketPrefix+"/")
	}
	return cleanPath(sk)
}

// isRealObject returns the attributes when sk names a stored object rather
// than a directory or prefix, or nil otherwise
func (b *blobbackend) isRealObject(ctx context.Context, sk string) *blob.Attributes {
	if sk == "" || strings.HasSuffix(sk, "/") {
		return nil
	}
	attrs, err := b.bucket.Attributes(ctx, sk)
	if err != nil {
		return nil
	}
	return attrs
}

func (b *blobbackend) attrsToObject(objPath string, attrs *blob.Attributes) *schema.Object {
	obj := &schema.Object{
		Name:        b.Name(),
		Path:        objPath,
		Size:        attrs.Size,
		ModTime:     attrs.ModTime,
		ContentType: attrs.ContentType,
		ETag:        attrs.ETag,
	}
	if len(attrs.Metadata) > 0 {
		obj.Meta = attrs.Metadata
	}
	return obj
}

func cleanPath(p string) string {
	return path.Clean("/" + p)
}

// blobErr wraps a go-cloud blob error with the appropriate httpresponse error
func blobErr(err error, url string) error {
	if err == nil {
		return nil
	}
	// Check for OS-level errors before go-cloud classification, since the
	// gcerrors default path wraps with %v and breaks the chain.
	if errors.Is(err, syscall.EISDIR) || errors.Is(err, syscall.EEXIST) {
		return httpresponse.ErrBadRequest.Withf("cannot overwrite directory with file: %q", url)
	}
	switch gcerrors.Code(err) {
	case gcerrors.NotFound:
		return httpresponse.ErrNotFound.Withf("object %q not found", url)
	case gcerrors.PermissionDenied:
		return httpresponse.ErrForbidden.Withf("permission denied for %q", url)
	case gcerrors.InvalidArgument:
		return httpresponse.ErrBadRequest.Withf("invalid argument for %q: %v", url, err)
	case gcerrors.FailedPrecondition:
		return httpresponse.ErrConflict.Withf("precondition failed for %q: %v", url, err)
	default:
		return httpresponse.ErrInternalError.Withf("blob operation failed: %v", err)
	}
}
