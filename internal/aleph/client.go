// Package aleph is a minimal client for the Aleph document API: collection
// lookup-or-create and document ingest, which is all the directory crawler
// needs from the service.
package aleph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawldir/internal/id/uuid"
	"github.com/JakeFAU/crawldir/internal/logging"
)

// Version is reported in the User-Agent header.
const Version = "0.1.0"

const (
	apiPrefix   = "/api/2/"
	octetStream = "application/octet-stream"
)

// Config controls how the client talks to the server.
type Config struct {
	Host      string
	APIKey    string
	SessionID string
	// Timeout bounds connecting, the TLS handshake and the wait for response
	// headers once the request is sent. Request bodies stream without a
	// deadline. Zero means no limit.
	Timeout time.Duration
}

// Client issues requests against one Aleph instance.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	apiKey    string
	sessionID string
	logger    *zap.Logger
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("aleph host is required")
	}
	host, err := url.Parse(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("parse aleph host: %w", err)
	}
	if host.Scheme == "" || host.Host == "" {
		return nil, fmt.Errorf("aleph host %q must be an absolute URL", cfg.Host)
	}
	base := host.ResolveReference(&url.URL{Path: apiPrefix})

	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID, err = uuid.New().NewID()
		if err != nil {
			return nil, fmt.Errorf("session id: %w", err)
		}
	}
	return &Client{
		baseURL:   base,
		http:      &http.Client{Transport: newTransport(cfg.Timeout)},
		apiKey:    cfg.APIKey,
		sessionID: sessionID,
		logger:    logging.OrNop(logger),
	}, nil
}

// newTransport applies timeout only to the phases that make no progress
// while they wait, so a slow but healthy upload is never cut off.
func newTransport(timeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	t.DialContext = dialer.DialContext
	t.TLSHandshakeTimeout = timeout
	t.ResponseHeaderTimeout = timeout
	return t
}

// SessionID returns the value sent in X-Aleph-Session.
func (c *Client) SessionID() string {
	return c.sessionID
}

func (c *Client) makeURL(path string, params url.Values) string {
	u := c.baseURL.ResolveReference(&url.URL{Path: path})
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return u.String()
}

// GetCollectionByForeignID returns the first collection whose foreign id
// matches, or ErrNotFound.
func (c *Client) GetCollectionByForeignID(ctx context.Context, foreignID string) (Collection, error) {
	params := url.Values{}
	params.Set("filter:foreign_id", foreignID)
	var rs collectionResultSet
	if err := c.do(ctx, http.MethodGet, c.makeURL("collections", params), nil, "", &rs); err != nil {
		return Collection{}, fmt.Errorf("filter collections: %w", err)
	}
	if len(rs.Results) == 0 {
		return Collection{}, fmt.Errorf("collection %q: %w", foreignID, ErrNotFound)
	}
	return rs.Results[0], nil
}

// CreateCollection creates a collection. Label defaults to the foreign id and
// category to "other".
func (c *Client) CreateCollection(ctx context.Context, foreignID string, cfg CollectionConfig) (Collection, error) {
	body, err := json.Marshal(newCreateCollectionRequest(foreignID, cfg))
	if err != nil {
		return Collection{}, fmt.Errorf("marshal collection: %w", err)
	}
	var coll Collection
	err = c.do(ctx, http.MethodPost, c.makeURL("collections", nil), bytes.NewReader(body), "application/json", &coll)
	if err != nil {
		return Collection{}, fmt.Errorf("create collection: %w", err)
	}
	return coll, nil
}

// LoadCollection looks a collection up by foreign id and creates it when it
// does not exist yet.
func (c *Client) LoadCollection(ctx context.Context, foreignID string, cfg CollectionConfig) (Collection, error) {
	coll, err := c.GetCollectionByForeignID(ctx, foreignID)
	if err == nil {
		return coll, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Collection{}, err
	}
	c.logger.Info("creating collection", zap.String("foreign_id", foreignID))
	return c.CreateCollection(ctx, foreignID, cfg)
}

// IngestUpload creates a folder (path == "") or uploads the file at path into
// the collection. The file body is streamed, never buffered.
func (c *Client) IngestUpload(
	ctx context.Context,
	collectionID string,
	path string,
	meta Metadata,
	index bool,
) (IngestResult, error) {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return IngestResult{}, fmt.Errorf("marshal metadata: %w", err)
	}
	params := url.Values{}
	params.Set("sync", "false")
	params.Set("index", strconv.FormatBool(index))
	target := c.makeURL("collections/"+url.PathEscape(collectionID)+"/ingest", params)

	var result IngestResult
	if path == "" {
		form := url.Values{}
		form.Set("meta", string(metaJSON))
		err = c.do(ctx, http.MethodPost, target, strings.NewReader(form.Encode()),
			"application/x-www-form-urlencoded", &result)
		if err != nil {
			return IngestResult{}, fmt.Errorf("ingest folder %q: %w", meta.ForeignID, err)
		}
		return result, nil
	}

	fh, err := os.Open(path)
	if err != nil {
		return IngestResult{}, fmt.Errorf("open upload: %w", err)
	}
	body := streamMultipart(fh, metaJSON)
	if err := c.do(ctx, http.MethodPost, target, body, body.contentType, &result); err != nil {
		if readErr := body.readError(); readErr != nil {
			err = readErr
		}
		return IngestResult{}, fmt.Errorf("ingest file %q: %w", meta.ForeignID, err)
	}
	return result, nil
}

// multipartBody is a request body produced by a writer goroutine.
type multipartBody struct {
	*io.PipeReader
	contentType string
	done        chan struct{}
	err         error
}

// streamMultipart encodes meta and the file contents as multipart/form-data
// through a pipe. The file is closed once it has been fully written or the
// reader side goes away.
func streamMultipart(fh *os.File, metaJSON []byte) *multipartBody {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	body := &multipartBody{
		PipeReader:  pr,
		contentType: mw.FormDataContentType(),
		done:        make(chan struct{}),
	}
	go func() {
		defer close(body.done)
		defer fh.Close()
		err := writeMultipart(mw, fh, metaJSON)
		if err == nil {
			err = mw.Close()
		}
		body.err = err
		pw.CloseWithError(err)
	}()
	return body
}

// readError stops the writer and returns the local read failure that broke
// the stream, if there was one.
func (b *multipartBody) readError() error {
	_ = b.Close()
	<-b.done
	if errors.Is(b.err, ErrLocalRead) {
		return b.err
	}
	return nil
}

// localReader tags read failures of the uploaded file so they are not
// mistaken for transport errors once they surface from the HTTP client.
type localReader struct {
	r io.Reader
}

func (l localReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		err = fmt.Errorf("%w: %w", ErrLocalRead, err)
	}
	return n, err
}

func writeMultipart(mw *multipart.Writer, fh *os.File, metaJSON []byte) error {
	if err := mw.WriteField("meta", string(metaJSON)); err != nil {
		return fmt.Errorf("write meta field: %w", err)
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", multipart.FileContentDisposition("file", filepath.Base(fh.Name())))
	header.Set("Content-Type", octetStream)
	part, err := mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, localReader{r: fh}); err != nil {
		return fmt.Errorf("copy file part: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "crawldir/"+Version)
	req.Header.Set("X-Aleph-Session", c.sessionID)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "ApiKey "+c.apiKey)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{StatusCode: 0, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newResponseError(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func newResponseError(status int, body []byte) *Error {
	apiErr := &Error{StatusCode: status}
	var payload struct {
		Status  any    `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		apiErr.Message = payload.Message
		return apiErr
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 256 {
		text = text[:256]
	}
	if text == "" {
		text = http.StatusText(status)
	}
	apiErr.Message = text
	return apiErr
}
