package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/medsage/internal/models"
)

// Client calls a running medsage server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// Ask sends a question to POST /api/ask.
func (c *Client) Ask(ctx context.Context, req *models.AskRequest) (*models.Answer, error) {
	var ans models.Answer
	if err := c.postJSON(ctx, "/api/ask", req, &ans); err != nil {
		return nil, err
	}
	return &ans, nil
}

// Consult sends symptoms to POST /api/consult.
func (c *Client) Consult(ctx context.Context, req *models.ConsultRequest) (*models.Diagnosis, error) {
	var d models.Diagnosis
	if err := c.postJSON(ctx, "/api/consult", req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Clear calls POST /api/clear.
func (c *Client) Clear(ctx context.Context) error {
	return c.postJSON(ctx, "/api/clear", nil, nil)
}

// Status calls GET /api/status.
func (c *Client) Status(ctx context.Context) (*models.Status, error) {
	var st models.Status
	if err := c.get(ctx, "/api/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Documents calls GET /api/documents.
func (c *Client) Documents(ctx context.Context, offset, limit int) (*models.UploadList, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	var list models.UploadList
	if err := c.get(ctx, "/api/documents?"+q.Encode(), &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Upload sends the file at path to POST /api/upload as multipart field "file".
func (c *Client) Upload(ctx context.Context, path string) (*models.UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var res models.UploadResult
	if err := c.do(req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// do sends req and decodes a 200 response into out. Error bodies of the form
// {"error": "..."} are surfaced as the error message.
func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
