package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrUploadFailed wraps every failure to obtain a signed URL or write a file.
var ErrUploadFailed = errors.New("upload failed")

// BlobTypeHeader is required by Azure Blob Storage on a single-shot PUT.
const BlobTypeHeader = "x-ms-blob-type"

// RelayPath is where the upload relay accepts multipart uploads.
const RelayPath = "/api/blob-upload"

// URLIssuer hands out signed write URLs for object names.
type URLIssuer interface {
	GetUploadURL(ctx context.Context, objectName, contentType string) (string, error)
}

// File is a local document selected for upload. Open is called once per
// attempt; the content is never kept beyond transmission.
type File struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// FromPath describes the regular file at p.
func FromPath(p string) (File, error) {
	info, err := os.Stat(p)
	if err != nil {
		return File{}, err
	}
	if !info.Mode().IsRegular() {
		return File{}, fmt.Errorf("%s is not a regular file", p)
	}
	return File{
		Name: filepath.Base(p),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) { return os.Open(p) },
	}, nil
}

// FromBytes wraps in-memory content.
func FromBytes(name string, data []byte) File {
	return File{
		Name: name,
		Size: int64(len(data)),
		Open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}
}

// PutError is a non-2xx answer from blob storage.
type PutError struct {
	Status int
	Body   string
}

func (e *PutError) Error() string {
	return fmt.Sprintf("blob storage responded %d: %s", e.Status, e.Body)
}

func (e *PutError) Is(target error) bool { return target == ErrUploadFailed }

// Put writes body to a signed URL as a block blob. size may be -1 when
// unknown.
func Put(ctx context.Context, client *http.Client, signedURL, contentType string, body io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, signedURL, body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	if size >= 0 {
		req.ContentLength = size
	}
	req.Header.Set(BlobTypeHeader, "BlockBlob")
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &PutError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Uploader runs the signed-URL upload: name the object, obtain a URL, send
// the bytes and return the URL without its credentials.
type Uploader struct {
	issuer     URLIssuer
	http       *http.Client
	relayURL   string
	timestamps bool
	now        func() time.Time
	log        *zap.Logger
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithHTTPClient sets the client used for storage and relay requests.
func WithHTTPClient(c *http.Client) Option {
	return func(u *Uploader) { u.http = c }
}

// WithRelay sends file bodies through the upload relay at baseURL instead of
// straight to storage.
func WithRelay(baseURL string) Option {
	return func(u *Uploader) { u.relayURL = strings.TrimSuffix(baseURL, "/") }
}

// WithTimestamps suffixes object names with the upload time so retries of the
// same file never overwrite each other.
func WithTimestamps(on bool) Option {
	return func(u *Uploader) { u.timestamps = on }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(u *Uploader) { u.log = l }
}

// NewUploader returns an Uploader that gets its URLs from issuer.
func NewUploader(issuer URLIssuer, opts ...Option) *Uploader {
	u := &Uploader{issuer: issuer, http: http.DefaultClient, now: time.Now, log: zap.NewNop()}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload stores f under sessionID (and the optional prefix) and returns its
// stable URL. Any failure wraps ErrUploadFailed.
func (u *Uploader) Upload(ctx context.Context, f File, sessionID, prefix string) (string, error) {
	name := f.Name
	if u.timestamps {
		name = TimestampedName(name, u.now())
	}
	object := ObjectName(prefix, sessionID, name)
	ct := ContentType(f.Name)

	signed, err := u.issuer.GetUploadURL(ctx, object, ct)
	if err != nil {
		return "", fmt.Errorf("%w: get upload url for %s: %w", ErrUploadFailed, object, err)
	}

	body, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %w", ErrUploadFailed, f.Name, err)
	}
	defer body.Close()

	var blobURL string
	if u.relayURL != "" {
		blobURL, err = u.viaRelay(ctx, signed, ct, name, body)
	} else {
		err = Put(ctx, u.http, signed, ct, body, f.Size)
		blobURL = StripQuery(signed)
	}
	if err != nil {
		u.log.Warn("blob upload failed", zap.String("object", object), zap.Error(err))
		return "", fmt.Errorf("upload %s: %w", f.Name, err)
	}
	u.log.Info("blob uploaded", zap.String("object", object), zap.Int64("size", f.Size))
	return blobURL, nil
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// viaRelay streams a multipart form to the relay, which performs the PUT.
func (u *Uploader) viaRelay(ctx context.Context, signed, contentType, name string, body io.Reader) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := func() error {
			if err := mw.WriteField("uploadUrl", signed); err != nil {
				return err
			}
			if err := mw.WriteField("contentType", contentType); err != nil {
				return err
			}
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(name)))
			h.Set("Content-Type", contentType)
			part, err := mw.CreatePart(h)
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, body); err != nil {
				return err
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.relayURL+RelayPath, pr)
	if err != nil {
		pr.CloseWithError(err)
		return "", fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: relay: %w", ErrUploadFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%w: relay responded %d: %s", ErrUploadFailed, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		BlobURL string `json:"blobUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.BlobURL == "" {
		return StripQuery(signed), nil
	}
	return StripQuery(out.BlobURL), nil
}
