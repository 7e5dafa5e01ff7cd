package apiclient

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/kapeview/kapeview/internal/model"
)

// UploadField is the multipart field carrying the archive.
const UploadField = "evidence_file"

// Upload streams the archive at req.Path to the backend. progress, when
// non-nil, is called from the uploading goroutine with bytes sent so far.
// The request timeout does not apply; ctx bounds the transfer.
func (c *Client) Upload(ctx context.Context, req model.UploadRequest, progress func(sent, total int64)) (*model.UploadResult, error) {
	f, err := os.Open(req.Path)
	if err != nil {
		return nil, fmt.Errorf("apiclient: open %s: %w", req.Path, err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("apiclient: stat %s: %w", req.Path, err)
	}
	if st.IsDir() {
		return nil, fmt.Errorf("apiclient: %s is a directory", req.Path)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadBody(mw, f, st.Size(), req, progress))
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(pathUpload, nil), pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("apiclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("X-Requested-With", "XMLHttpRequest")
	if err := c.protect(ctx, httpReq); err != nil {
		pr.Close()
		return nil, err
	}

	var out model.UploadResult
	if err := c.doWith(c.upload, httpReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func writeUploadBody(mw *multipart.Writer, f io.Reader, size int64, req model.UploadRequest, progress func(sent, total int64)) error {
	fields := []struct{ name, value string }{
		{"case_id", req.CaseID},
		{"uploaded_by", req.UploadedBy},
		{"source_system", req.SourceSystem},
		{"acquisition_tool", req.AcquisitionTool},
		{"notes", req.Notes},
	}
	for _, fld := range fields {
		if fld.value == "" {
			continue
		}
		if err := mw.WriteField(fld.name, fld.value); err != nil {
			return err
		}
	}

	part, err := mw.CreateFormFile(UploadField, filepath.Base(req.Path))
	if err != nil {
		return err
	}
	src := f
	if progress != nil {
		src = &progressReader{r: f, total: size, fn: progress}
	}
	if _, err := io.Copy(part, src); err != nil {
		return err
	}
	return mw.Close()
}

// progressReader reports cumulative bytes read.
type progressReader struct {
	r     io.Reader
	sent  int64
	total int64
	fn    func(sent, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.fn(p.sent, p.total)
	}
	return n, err
}
