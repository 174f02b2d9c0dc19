package httpx

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/lgc202/anthropic-kit/qs"
)

// FilePart is one file entry of a multipart request.
type FilePart struct {
	// Field is the form field name.
	Field string
	// Name is the filename reported to the server.
	Name string
	// Reader supplies the file content.
	Reader io.Reader
	// ContentType is optional; the writer picks a default when empty.
	ContentType string
}

// WithMultipart builds a multipart/form-data body from structured fields plus
// file parts. Structured fields are flattened through the query-string encoder
// so nested objects and arrays survive the form encoding. The Content-Type
// (with boundary) is set here; callers must not override it.
func WithMultipart(fields map[string]any, files []FilePart) RequestOption {
	return requestOptionFunc(func(c *requestConfig) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)

		flat, err := qs.DefaultEncoder().Values(fields)
		if err != nil {
			c.body = errReader{err: err}
			c.bodyBytes = nil
			return
		}
		for key, vals := range flat {
			for _, v := range vals {
				if err := w.WriteField(key, v); err != nil {
					c.body = errReader{err: err}
					c.bodyBytes = nil
					return
				}
			}
		}
		for _, f := range files {
			fw, err := w.CreateFormFile(f.Field, f.Name)
			if err != nil {
				c.body = errReader{err: err}
				c.bodyBytes = nil
				return
			}
			if _, err := io.Copy(fw, f.Reader); err != nil {
				c.body = errReader{err: fmt.Errorf("multipart: copy %s: %w", f.Field, err)}
				c.bodyBytes = nil
				return
			}
		}
		if err := w.Close(); err != nil {
			c.body = errReader{err: err}
			c.bodyBytes = nil
			return
		}

		// Buffered bytes keep the body replayable across retries.
		c.bodyBytes = buf.Bytes()
		c.body = nil
		c.contentType = w.FormDataContentType()
	})
}
