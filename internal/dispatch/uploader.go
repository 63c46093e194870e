package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"loanvoice-platform/internal/borrowers"
)

// UploadError carries the backend's actionable validation message, such as
// the enumerated missing columns of a rejected file.
type UploadError struct {
	StatusCode     int
	Message        string
	MissingColumns []string
}

func (e *UploadError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upload failed: %s", e.Message)
	}
	return fmt.Sprintf("upload failed: backend returned %d", e.StatusCode)
}

// Uploader sends a borrower list file to the backend. Any success response
// is a full-replace signal for the directory.
type Uploader struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewUploader(baseURL, token string) *Uploader {
	return &Uploader{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type uploadResponse struct {
	Borrowers      []borrowers.Borrower `json:"borrowers"`
	Error          string               `json:"error"`
	Message        string               `json:"message"`
	MissingColumns []string             `json:"missing_columns"`
}

// UploadFile posts the file at path and returns the replacing list.
func (u *Uploader) UploadFile(ctx context.Context, path string) ([]borrowers.Borrower, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return u.Upload(ctx, filepath.Base(path), f)
}

func (u *Uploader) Upload(ctx context.Context, filename string, r io.Reader) ([]borrowers.Borrower, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/v1/upload-csv", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	var parsed uploadResponse
	_ = json.Unmarshal(payload, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := parsed.Message
		if msg == "" {
			msg = parsed.Error
		}
		return nil, &UploadError{
			StatusCode:     resp.StatusCode,
			Message:        msg,
			MissingColumns: parsed.MissingColumns,
		}
	}
	return parsed.Borrowers, nil
}
