package manager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path"
	"regexp"
	"strings"

	// Packages
	otel "github.com/mutablelogic/go-client/pkg/otel"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	types "github.com/mutablelogic/go-server/pkg/types"
	transfer "github.com/mutablelogic/go-transfer"
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
	zap "go.uber.org/zap"
)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

// ErrRecordNotSaved prefixes the message of a persistence failure. The file
// is in storage but the metadata service has no record of it.
const ErrRecordNotSaved = "file uploaded but record not saved"

var (
	reInvalidName = regexp.MustCompile(`[^a-zA-Z0-9\s._-]`)
	reWhitespace  = regexp.MustCompile(`\s+`)
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// RegisterTransfer creates a pending transfer so that a subscriber can attach
// to its progress before any bytes are sent.
func (manager *Manager) RegisterTransfer(ctx context.Context, req schema.CreateTransferRequest) (_ *schema.Transfer, err error) {
	// OTEL span
	_, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("RegisterTransfer"))
	defer func() { endFunc(err) }()

	backend, err := manager.backendForName(req.Backend)
	if err != nil {
		return nil, err
	}
	name := SanitizeName(req.FileName)
	if name == "" {
		return nil, httpresponse.ErrBadRequest.Withf("invalid file name %q", req.FileName)
	} else if req.TotalBytes < 0 {
		return nil, httpresponse.ErrBadRequest.Withf("invalid total bytes %d", req.TotalBytes)
	}

	// The destination is a directory within the backend
	objPath := path.Join("/", req.Path, name)
	if key := backend.Key(objPath); key == "" || key == "/" {
		return nil, httpresponse.ErrBadRequest.Withf("path %q not handled by backend %q", objPath, backend.Name())
	}

	id := req.ID
	if id == "" {
		id = schema.NewTransferID()
	}
	t, err := manager.publisher.Register(schema.Transfer{
		ID:          id,
		Backend:     backend.Name(),
		Path:        objPath,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		TotalBytes:  req.TotalBytes,
	})
	if err != nil {
		return nil, err
	}

	manager.log(id).Info("transfer registered", zap.String("backend", t.Backend), zap.String("path", t.Path))
	return t, nil
}

// GetTransfer returns the last known state of a transfer.
func (manager *Manager) GetTransfer(_ context.Context, id string) (*schema.Transfer, error) {
	return manager.publisher.Get(id)
}

// ListTransfers returns all retained transfers.
func (manager *Manager) ListTransfers(_ context.Context) *schema.ListTransfersResponse {
	body := manager.publisher.List()
	return &schema.ListTransfersResponse{Count: len(body), Body: body}
}

// AcceptTransfer spools the content of a registered transfer to disk and
// relays it to storage in the background. It returns as soon as the content
// has been received.
func (manager *Manager) AcceptTransfer(ctx context.Context, id string, r io.Reader) (*schema.Transfer, error) {
	if err := manager.claim(id); err != nil {
		return nil, err
	}

	// Spool to a temporary file, removed once relayed
	f, err := os.CreateTemp(manager.spool, "transfer-*")
	if err != nil {
		manager.release(id)
		return nil, httpresponse.ErrInternalError.Withf("spool: %v", err)
	}
	size, err := io.Copy(f, r)
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		manager.release(id)
		return nil, errors.Join(httpresponse.ErrBadRequest.Withf("receive: %v", err), f.Close(), os.Remove(f.Name()))
	}

	manager.start(id, &spoolFile{File: f}, size)
	return manager.publisher.Get(id)
}

// StartTransfer relays body to storage in the background. size is the number
// of bytes in body, or zero when unknown. The body is closed when the
// transfer ends.
func (manager *Manager) StartTransfer(id string, body io.ReadCloser, size int64) error {
	if err := manager.claim(id); err != nil {
		body.Close()
		return err
	}
	manager.start(id, body, size)
	return nil
}

// RunTransfer runs the transport, remoteProcessing and persistence stages
// for a registered transfer, publishing progress for each. Exactly one
// terminal event is published. The returned error is the cause of a failed
// transfer, or nil when it completed.
func (manager *Manager) RunTransfer(ctx context.Context, id string, body io.Reader, size int64) (err error) {
	// OTEL span
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("RunTransfer"))
	defer func() { endFunc(err) }()

	session, err := manager.publisher.Get(id)
	if err != nil {
		return err
	}
	backend, err := manager.backendForName(session.Backend)
	if err != nil {
		return manager.fail(id, schema.StageTransport, 0, err.Error(), err)
	}
	total := session.TotalBytes
	if total <= 0 {
		total = size
	}
	run := &pipeline{manager: manager, id: id, total: total}

	// transport, hashing the upload on the way through only when it is read
	// back afterwards
	var digest hash.Hash
	source := body
	if manager.verify == VerifyChecksum {
		digest = sha256.New()
		source = io.TeeReader(body, digest)
	}
	obj, err := run.transport(child, backend, session, source)
	if err != nil {
		return manager.fail(id, schema.StageTransport, run.percent, err.Error(), err)
	}

	// remoteProcessing
	checksum, err := run.verify(child, backend, session.Path, obj, digest)
	if err != nil {
		return manager.fail(id, schema.StageRemoteProcessing, run.percent, err.Error(), err)
	}

	// persistence
	if err := run.publish(schema.StagePersistence, schema.StatusActive, 0, obj.Size, "saving record"); err != nil {
		return err
	}
	if manager.persister == nil {
		err := errors.New("no metadata service configured")
		return manager.fail(id, schema.StagePersistence, 0, ErrRecordNotSaved+": "+err.Error(), err)
	}
	if _, err := manager.persister.CreateRecord(child, schema.RecordMeta{
		TransferID:  id,
		Backend:     backend.Name(),
		Path:        session.Path,
		FileName:    session.FileName,
		Size:        obj.Size,
		ContentType: obj.ContentType,
		ETag:        obj.ETag,
		Checksum:    checksum,
	}); err != nil {
		return manager.fail(id, schema.StagePersistence, 0, ErrRecordNotSaved+": "+err.Error(), err)
	}

	if err := run.publish(schema.StagePersistence, schema.StatusActive, 100, obj.Size, "record saved"); err != nil {
		return err
	}
	if err := run.publish(schema.StagePersistence, schema.StatusCompleted, 100, obj.Size, "upload complete"); err != nil {
		return err
	}
	manager.log(id).Info("transfer completed", zap.String("path", session.Path), zap.Int64("size", obj.Size))
	return nil
}

// SanitizeName returns a file name safe for use as an object name. Characters
// other than letters, digits, '.', '-' and '_' are removed, whitespace runs
// become '_' and the result is lowercased.
func SanitizeName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = reInvalidName.ReplaceAllString(name, "")
	name = reWhitespace.ReplaceAllString(strings.TrimSpace(name), "_")
	name = strings.ToLower(name)
	if strings.Trim(name, ".") == "" {
		return ""
	}
	return name
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// claim marks a pending transfer as started, so content is accepted once
func (manager *Manager) claim(id string) error {
	session, err := manager.publisher.Get(id)
	if err != nil {
		return err
	}
	manager.mu.Lock()
	defer manager.mu.Unlock()
	if _, exists := manager.started[id]; exists || session.Status != schema.StatusPending {
		return httpresponse.ErrConflict.Withf("transfer %q already started", id)
	}
	manager.started[id] = struct{}{}
	return nil
}

func (manager *Manager) release(id string) {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	delete(manager.started, id)
}

func (manager *Manager) start(id string, body io.ReadCloser, size int64) {
	manager.wg.Add(1)
	go func() {
		defer manager.wg.Done()
		defer manager.release(id)
		defer body.Close()

		ctx := manager.ctx
		if err := manager.sem.Acquire(ctx, 1); err != nil {
			_ = manager.fail(id, schema.StageTransport, 0, "transfer cancelled before it started", err)
			return
		}
		defer manager.sem.Release(1)

		if err := manager.RunTransfer(ctx, id, body, size); err != nil {
			manager.log(id).Warn("transfer failed", zap.Error(err))
		}
	}()
}

// fail publishes the terminal failed event and returns cause
func (manager *Manager) fail(id string, stage schema.Stage, percent float64, message string, cause error) error {
	if err := manager.publisher.Publish(schema.ProgressEvent{
		TransferID: id,
		Stage:      stage,
		Status:     schema.StatusFailed,
		Percent:    percent,
		Message:    message,
		Timestamp:  manager.now(),
	}); err != nil {
		manager.log(id).Debug("publish failed event", zap.Error(err))
	}
	return cause
}

///////////////////////////////////////////////////////////////////////////////
// PIPELINE

// pipeline holds the state of one transfer pipeline
type pipeline struct {
	manager *Manager
	id      string
	total   int64
	sent    int64
	percent float64
}

func (r *pipeline) publish(stage schema.Stage, status schema.Status, percent float64, bytes int64, message string) error {
	return r.publishEvent(schema.ProgressEvent{
		Stage:            stage,
		Status:           status,
		Percent:          percent,
		BytesTransferred: bytes,
		Message:          message,
	})
}

func (r *pipeline) publishEvent(e schema.ProgressEvent) error {
	e.TransferID = r.id
	if e.Timestamp.IsZero() {
		e.Timestamp = r.manager.now()
	}
	if r.total > 0 && e.TotalBytes == nil {
		e.TotalBytes = types.Ptr(r.total)
	}
	r.percent = e.Percent
	if err := r.manager.publisher.Publish(e); err != nil {
		// The transfer was ended elsewhere, for example by the idle watchdog
		return fmt.Errorf("transfer %q: %w", r.id, err)
	}
	return nil
}

func (r *pipeline) transport(ctx context.Context, backend transfer.Backend, session *schema.Transfer, body io.Reader) (*schema.Object, error) {
	if err := r.publish(schema.StageTransport, schema.StatusActive, 0, 0, "uploading"); err != nil {
		return nil, err
	}

	var publishErr error
	pr := newProgressReader(body, r.total, r.manager.interval, r.manager.now, func(p progress) {
		if publishErr != nil {
			return
		}
		r.sent = p.written
		publishErr = r.publishEvent(schema.ProgressEvent{
			Stage:            schema.StageTransport,
			Status:           schema.StatusActive,
			Percent:          p.percent,
			BytesTransferred: p.written,
			ThroughputHint:   types.Ptr(p.speed),
		})
	})

	obj, err := backend.CreateObject(ctx, schema.CreateObjectRequest{
		Path:        session.Path,
		Body:        &abortReader{Reader: pr, err: &publishErr},
		ContentType: session.ContentType,
		Meta:        schema.ObjectMeta{schema.AttrTransferID: r.id},
	})
	if publishErr != nil {
		return nil, publishErr
	} else if err != nil {
		return nil, err
	}
	r.sent = pr.written
	if err := r.publish(schema.StageTransport, schema.StatusActive, 100, pr.written, "uploaded"); err != nil {
		return nil, err
	}
	return obj, nil
}

// verify runs the remoteProcessing stage and returns the hex checksum when
// the object was read back
func (r *pipeline) verify(ctx context.Context, backend transfer.Backend, objPath string, obj *schema.Object, sent hash.Hash) (string, error) {
	mode := r.manager.verify
	if mode == VerifyNone {
		return "", nil
	}
	if err := r.publish(schema.StageRemoteProcessing, schema.StatusActive, 0, 0, "verifying"); err != nil {
		return "", err
	}

	switch mode {
	case VerifySize:
		stored, err := backend.GetObject(ctx, schema.GetObjectRequest{Path: objPath})
		if err != nil {
			return "", err
		} else if stored.Size != r.sent {
			return "", fmt.Errorf("stored size %d does not match %d bytes sent", stored.Size, r.sent)
		} else if r.total > 0 && stored.Size != r.total {
			return "", fmt.Errorf("stored size %d does not match declared size %d", stored.Size, r.total)
		}
		obj.Size = stored.Size
		if err := r.publish(schema.StageRemoteProcessing, schema.StatusActive, 100, stored.Size, "verified"); err != nil {
			return "", err
		}
		return "", nil
	case VerifyChecksum:
		reader, stored, err := backend.ReadObject(ctx, schema.ReadObjectRequest{GetObjectRequest: schema.GetObjectRequest{Path: objPath}})
		if err != nil {
			return "", err
		}
		defer reader.Close()

		var publishErr error
		digest := sha256.New()
		pr := newProgressReader(reader, stored.Size, r.manager.interval, r.manager.now, func(p progress) {
			if publishErr == nil {
				publishErr = r.publish(schema.StageRemoteProcessing, schema.StatusActive, p.percent, p.written, "verifying")
			}
		})
		if _, err := io.Copy(digest, &abortReader{Reader: pr, err: &publishErr}); publishErr != nil {
			return "", publishErr
		} else if err != nil {
			return "", err
		}
		want, got := hex.EncodeToString(sent.Sum(nil)), hex.EncodeToString(digest.Sum(nil))
		if want != got {
			return "", fmt.Errorf("stored checksum %s does not match %s", got, want)
		}
		if err := r.publish(schema.StageRemoteProcessing, schema.StatusActive, 100, stored.Size, "verified"); err != nil {
			return "", err
		}
		return got, nil
	default:
		return "", fmt.Errorf("unknown verify mode %q", mode)
	}
}

///////////////////////////////////////////////////////////////////////////////
// READERS

// spoolFile removes the spooled file on close
type spoolFile struct {
	*os.File
}

func (f *spoolFile) Close() error {
	return errors.Join(f.File.Close(), os.Remove(f.File.Name()))
}

// abortReader stops reading once *err is set
type abortReader struct {
	io.Reader
	err *error
}

func (r *abortReader) Read(p []byte) (int, error) {
	if *r.err != nil {
		return 0, *r.err
	}
	return r.Reader.Read(p)
}
