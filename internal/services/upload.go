package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sync"
	"time"

	"github.com/desertthunder/vidx/internal/models"
	"github.com/desertthunder/vidx/internal/shared"
)

// progressReader counts bytes read from the file part and reports whole percentages.
//
// Intermediate reports stop at 99; 100 is reserved for the server's acknowledgement.
type progressReader struct {
	r     io.Reader
	total int64
	touch func(eof bool) // called after every read that moved bytes or hit EOF

	mu   sync.Mutex
	read int64
	last int
	fn   ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if p.touch != nil && (n > 0 || err == io.EOF) {
		p.touch(err == io.EOF)
	}
	if n > 0 {
		p.advance(int64(n))
	}
	return n, err
}

func (p *progressReader) advance(n int64) {
	p.mu.Lock()
	p.read += n
	percent := 99
	if p.total > 0 && p.read < p.total {
		percent = min(int(p.read*100/p.total), 99)
	}
	report := percent > p.last
	if report {
		p.last = percent
	}
	p.mu.Unlock()

	if report && p.fn != nil {
		p.fn(percent)
	}
}

// multipartFrame renders the multipart envelope around the file part: everything before the
// file bytes and the closing boundary after them.
func multipartFrame(meta models.FileDescriptor, title string) (head, tail []byte, contentType string, err error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("title", title); err != nil {
		return nil, nil, "", err
	}

	fileType := meta.ContentType
	if fileType == "" {
		fileType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{"name": "video", "filename": meta.Name}))
	h.Set("Content-Type", fileType)
	if _, err := mw.CreatePart(h); err != nil {
		return nil, nil, "", err
	}

	headLen := buf.Len()
	if err := mw.Close(); err != nil {
		return nil, nil, "", err
	}

	all := buf.Bytes()
	return all[:headLen], all[headLen:], mw.FormDataContentType(), nil
}

// errUploadStalled cancels an upload whose body made no progress within the idle limit.
var errUploadStalled = errors.New("upload stalled")

// UploadVideo sends the file as multipart fields "title" and "video" and returns the server-assigned job id.
//
// onProgress receives 0 before any bytes are sent, non-decreasing percentages while the body
// streams, and 100 once the server acknowledges the upload. It is not called with 100 on failure.
//
// The transfer may take as long as it needs. It is aborted as a network error when no file
// bytes are read for the client's timeout. Once the file is fully read only ctx bounds the
// wait for the server's answer.
func (c *Client) UploadVideo(ctx context.Context, file io.Reader, meta models.FileDescriptor, title string, onProgress ProgressFunc) (models.JobID, error) {
	if file == nil {
		return "", newValidationError("Please select a file and enter a title")
	}

	head, tail, contentType, err := multipartFrame(meta, title)
	if err != nil {
		return "", fmt.Errorf("failed to build upload body: %w", err)
	}

	if onProgress != nil {
		onProgress(0)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	counter := &progressReader{r: file, total: meta.Size, fn: onProgress}
	if c.timeout > 0 {
		idle := time.AfterFunc(c.timeout, func() { cancel(errUploadStalled) })
		defer idle.Stop()
		counter.touch = func(eof bool) {
			if eof {
				idle.Stop()
				return
			}
			idle.Reset(c.timeout)
		}
	}
	body := io.MultiReader(bytes.NewReader(head), counter, bytes.NewReader(tail))

	var length int64
	if meta.Size > 0 {
		length = int64(len(head)) + meta.Size + int64(len(tail))
	}

	var p videoPayload
	r := request{
		method:        http.MethodPost,
		path:          "/videos/upload",
		raw:           body,
		contentType:   contentType,
		contentLength: length,
	}
	if err := c.do(ctx, r, &p); err != nil {
		if errors.Is(context.Cause(ctx), errUploadStalled) {
			return "", newNetworkError(fmt.Errorf("%w: no progress for %s", errUploadStalled, c.timeout))
		}
		return "", err
	}

	if !p.Video.ID.Assigned() {
		return "", fmt.Errorf("%w: upload response did not include a video id", shared.ErrServer)
	}

	if onProgress != nil {
		onProgress(100)
	}
	return p.Video.ID, nil
}
