package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bistrohq/bistroctl/internal/envelope"
	"github.com/bistrohq/bistroctl/internal/notify"
)

// Blob is a downloaded binary payload.
type Blob struct {
	Data        []byte
	ContentType string
	Filename    string
	RequestID   string
}

// FileSaver is the environment capability for persisting downloads — the
// CLI analogue of triggering a browser save. Injected so the pipeline has
// no direct filesystem coupling.
type FileSaver interface {
	Save(name string, data []byte) (string, error)
}

// DirSaver writes downloads into a directory, creating it on demand.
type DirSaver struct {
	Dir string
}

// Save writes data under the saver's directory and returns the full path.
func (s DirSaver) Save(name string, data []byte) (string, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating download directory: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing download: %w", err)
	}
	return path, nil
}

// binaryContentTypes is the allow-list of media types the pipeline trusts
// as genuine file payloads without inspection.
var binaryContentTypes = map[string]bool{
	"application/octet-stream": true,
	"application/pdf":          true,
	"application/zip":          true,
	"text/csv":                 true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
}

// isBinaryContentType reports whether the declared content type is on the
// known-binary allow-list. image/* is trusted as a family.
func isBinaryContentType(ct string) bool {
	media, _, err := mime.ParseMediaType(ct)
	if err != nil {
		media = strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	}
	if media == "" {
		return false
	}
	if strings.HasPrefix(media, "image/") {
		return true
	}
	return binaryContentTypes[media]
}

// GetBlob fetches a binary payload. The request opts out of JSON
// normalization, but the response is only trusted as a file when its
// declared content type is on the binary allow-list. Otherwise the body is
// read as text and parsed as an error envelope first — some backends return
// JSON error bodies on a stream-typed endpoint — and only when that parse
// fails is the payload treated as genuine binary data.
func (c *Client) GetBlob(ctx context.Context, path string, params url.Values, opts *RequestOptions) (*Blob, error) {
	opts = opts.orDefault()
	return c.getBlob(ctx, path, params, opts, false)
}

func (c *Client) getBlob(ctx context.Context, path string, params url.Values, opts *RequestOptions, retried bool) (*Blob, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	req, err := c.newRequest(ctx, http.MethodGet, path, params, nil, requestID)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "*/*")

	timeout := c.reportTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req = req.WithContext(reqCtx)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(http.MethodGet, err, opts, requestID)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && !retried && c.tokens != nil {
		io.Copy(io.Discard, resp.Body)
		if _, err := c.refreshAccess(ctx); err != nil {
			apiErr := envelope.WrapAPIError(envelope.CodeUnauthorized,
				"session expired and could not be refreshed", http.StatusUnauthorized, requestID, err)
			c.notifyError(apiErr, opts)
			return nil, apiErr
		}
		return c.getBlob(ctx, path, params, opts, true)
	}

	raw, err := c.readWithProgress(resp, opts)
	if err != nil {
		return nil, envelope.WrapAPIError(envelope.CodeNetwork,
			"reading download body", resp.StatusCode, requestID, err)
	}

	if resp.StatusCode >= 400 {
		apiErr := errorFromBody(http.MethodGet, resp.StatusCode, raw, requestID)
		c.notifyError(apiErr, opts)
		return nil, apiErr
	}

	contentType := resp.Header.Get("Content-Type")
	if !isBinaryContentType(contentType) {
		// Content type is not a known binary: this may be a JSON error body
		// hiding behind a stream endpoint. Parse before trusting.
		if apiErr := errorFromTextBody(raw, requestID); apiErr != nil {
			c.notifyError(apiErr, opts)
			return nil, apiErr
		}
	}

	blob := &Blob{
		Data:        raw,
		ContentType: contentType,
		Filename:    ResolveFilename(resp.Header.Get("Content-Disposition"), contentType, opts.Filename),
		RequestID:   fmt.Sprintf("blob-%d", time.Now().UnixMilli()),
	}
	return blob, nil
}

// DownloadFile fetches a binary payload and persists it through the
// injected FileSaver, returning the saved path.
func (c *Client) DownloadFile(ctx context.Context, path string, params url.Values, opts *RequestOptions) (string, error) {
	opts = opts.orDefault()
	blob, err := c.GetBlob(ctx, path, params, opts)
	if err != nil {
		return "", err
	}
	saved, err := c.saver.Save(blob.Filename, blob.Data)
	if err != nil {
		apiErr := envelope.WrapAPIError(envelope.CodeFileGeneration,
			fmt.Sprintf("saving %s", blob.Filename), 0, blob.RequestID, err)
		c.notifyError(apiErr, opts)
		return "", apiErr
	}
	if opts.SuccessMessage != "" {
		c.notifier.Notify(notify.LevelSuccess, opts.SuccessMessage, blob.RequestID)
	}
	return saved, nil
}

// errorFromTextBody attempts to interpret a non-binary payload as a JSON
// error. Returns nil when the body does not parse as a failed response —
// the caller then treats it as genuine data.
func errorFromTextBody(raw []byte, requestID string) *envelope.APIError {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	if success, ok := m["success"].(bool); ok && !success {
		return errorFromBody(http.MethodGet, http.StatusOK, raw, requestID)
	}
	if _, ok := m["error"].(map[string]any); ok {
		return errorFromBody(http.MethodGet, http.StatusOK, raw, requestID)
	}
	return nil
}

// readWithProgress reads the body, reporting integer percentages through
// opts.OnProgress when the total length is declared. Without a declared
// total no progress is fabricated.
func (c *Client) readWithProgress(resp *http.Response, opts *RequestOptions) ([]byte, error) {
	if opts.OnProgress == nil || resp.ContentLength <= 0 {
		return io.ReadAll(resp.Body)
	}
	pr := &progressReader{
		r:     resp.Body,
		total: resp.ContentLength,
		fn:    opts.OnProgress,
	}
	return io.ReadAll(pr)
}

type progressReader struct {
	r      io.Reader
	total  int64
	loaded int64
	last   int
	fn     func(pct int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.loaded += int64(n)
	pct := int(p.loaded * 100 / p.total)
	if pct > 100 {
		pct = 100
	}
	if pct != p.last {
		p.last = pct
		p.fn(pct)
	}
	return n, err
}

// ─── Filename Resolution ──────────────────────────────────────────────────────

// ResolveFilename derives the download filename. Precedence: explicit
// override, RFC 5987/2231 extended notation, quoted filename=, unquoted
// filename=, content-type-derived synthetic name, then literal "download".
func ResolveFilename(contentDisposition, contentType, override string) string {
	if override != "" {
		return override
	}
	if name := filenameFromDisposition(contentDisposition); name != "" {
		return name
	}
	if ext := extensionForType(contentType); ext != "" {
		return fmt.Sprintf("download_%d%s", time.Now().Unix(), ext)
	}
	return "download"
}

// filenameFromDisposition walks the Content-Disposition strategies in order,
// returning on the first match.
func filenameFromDisposition(cd string) string {
	if cd == "" {
		return ""
	}

	// RFC 5987 / RFC 2231 extended parameter: filename*=charset''value
	for _, part := range strings.Split(cd, ";") {
		part = strings.TrimSpace(part)
		lower := strings.ToLower(part)
		if !strings.HasPrefix(lower, "filename*=") {
			continue
		}
		value := part[len("filename*="):]
		if idx := strings.Index(value, "''"); idx >= 0 {
			value = value[idx+2:]
		}
		value = strings.Trim(value, `"`)
		if decoded, err := url.PathUnescape(value); err == nil && decoded != "" {
			return decoded
		}
		if value != "" {
			return value
		}
	}

	// mime.ParseMediaType handles the quoted form and most 2231 encodings.
	if _, params, err := mime.ParseMediaType(cd); err == nil {
		if name := params["filename"]; name != "" {
			return name
		}
	}

	// Last: tolerant scan for an unquoted filename= parameter.
	for _, part := range strings.Split(cd, ";") {
		part = strings.TrimSpace(part)
		lower := strings.ToLower(part)
		if strings.HasPrefix(lower, "filename=") && !strings.HasPrefix(lower, "filename*=") {
			return strings.Trim(part[len("filename="):], `" `)
		}
	}
	return ""
}

// extensionForType maps a content type to a file extension for synthetic
// download names.
func extensionForType(ct string) string {
	media, _, err := mime.ParseMediaType(ct)
	if err != nil || media == "" {
		return ""
	}
	switch media {
	case "text/csv":
		return ".csv"
	case "application/pdf":
		return ".pdf"
	case "application/zip":
		return ".zip"
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return ".xlsx"
	case "application/vnd.ms-excel":
		return ".xls"
	}
	if exts, err := mime.ExtensionsByType(media); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}
