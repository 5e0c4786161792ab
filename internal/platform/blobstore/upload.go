package blobstore

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// Upload is a multipart file read into memory with a resolved content type.
type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Reader returns a fresh reader over the upload content.
func (u Upload) Reader() io.Reader { return bytes.NewReader(u.Data) }

// ReadUpload reads a multipart file. When the client sends no useful
// content type it is sniffed from the content.
func ReadUpload(fh *multipart.FileHeader) (Upload, error) {
	if fh == nil || fh.Filename == "" {
		return Upload{}, ErrMissingFileName
	}
	if fh.Size > MaxFileSize {
		return Upload{}, ErrFileTooLarge
	}

	src, err := fh.Open()
	if err != nil {
		return Upload{}, fmt.Errorf("open uploaded file: %w", err)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, MaxFileSize+1))
	if err != nil {
		return Upload{}, fmt.Errorf("read uploaded file: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return Upload{}, ErrFileTooLarge
	}

	ct := normalizeContentType(fh.Header.Get("Content-Type"))
	if ct == "" || ct == "application/octet-stream" {
		ct = normalizeContentType(http.DetectContentType(data))
	}

	return Upload{FileName: fh.Filename, ContentType: ct, Data: data}, nil
}
