// Package api is a thin HTTP client for the cloudvault REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/netx"
)

var ErrUnauthenticated = errors.New("not authenticated")

// Error is a non-2xx answer from the server.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

type GenerateResult struct {
	Success       bool      `json:"success"`
	Message       string    `json:"message"`
	ExpiresAt     time.Time `json:"expires_at"`
	OTPForTesting string    `json:"otp_for_testing,omitempty"`
}

type VerifyResult struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type File struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Size          int64     `json:"size"`
	MimeType      string    `json:"mime_type"`
	Checksum      string    `json:"checksum"`
	PrimaryNodeID string    `json:"primary_node_id"`
	CreatedAt     time.Time `json:"created_at"`
}

type ShareRequest struct {
	Permission       string `json:"permission,omitempty"`
	ExpiresInSeconds int64  `json:"expires_in_seconds,omitempty"`
	Password         string `json:"password,omitempty"`
	MaxDownloads     *int   `json:"max_downloads,omitempty"`
}

type Share struct {
	ID           string     `json:"id"`
	FileID       string     `json:"file_id"`
	Token        string     `json:"token"`
	URL          string     `json:"url"`
	Permission   string     `json:"permission"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	MaxDownloads *int       `json:"max_downloads,omitempty"`
	Protected    bool       `json:"protected"`
}

type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// SetToken stores the session token sent with authenticated calls.
func (c *Client) SetToken(token string) {
	c.token = token
}

func (c *Client) Authenticated() bool {
	return c.token != ""
}

// ShareURL turns the relative link returned by the server into an absolute one.
func (c *Client) ShareURL(s Share) string {
	return c.baseURL + s.URL
}

func (c *Client) GenerateOTP(ctx context.Context, subject, purpose string) (*GenerateResult, error) {
	var out GenerateResult
	body := map[string]string{"subject": subject, "purpose": purpose}
	if err := c.doJSON(ctx, http.MethodPost, "/api/otp/generate", body, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyOTP exchanges a code for a session token and keeps it for later calls.
func (c *Client) VerifyOTP(ctx context.Context, subject, code, purpose string) (*VerifyResult, error) {
	var out VerifyResult
	body := map[string]string{"subject": subject, "code": code, "purpose": purpose}
	if err := c.doJSON(ctx, http.MethodPost, "/api/otp/verify", body, &out, false); err != nil {
		return nil, err
	}
	c.token = out.Token
	return &out, nil
}

func (c *Client) ListFiles(ctx context.Context) ([]File, error) {
	var out struct {
		Files []File `json:"files"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/files", nil, &out, true); err != nil {
		return nil, err
	}
	return out.Files, nil
}

// Upload streams r as a multipart form with a single "file" part.
func (c *Client) Upload(ctx context.Context, name string, r io.Reader) (*File, error) {
	if !c.Authenticated() {
		return nil, ErrUnauthenticated
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", name)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/files", pr)
	if err != nil {
		_ = pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+c.token)

	var out File
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Download is an open file body and the name the server suggested for it.
type Download struct {
	Name string
	Body io.ReadCloser
}

// DownloadFile opens one of the caller's files. The caller closes Body.
func (c *Client) DownloadFile(ctx context.Context, id string) (*Download, error) {
	if !c.Authenticated() {
		return nil, ErrUnauthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/files/"+url.PathEscape(id)+"/download", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+c.token)

	return c.openAttachment(req, id)
}

// DownloadShare redeems a share link. When the server answers with a
// presigned URL the object is fetched from storage directly.
func (c *Client) DownloadShare(ctx context.Context, token, password string) (*Download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/s/"+url.PathEscape(token)+"/download", nil)
	if err != nil {
		return nil, err
	}
	if password != "" {
		req.Header.Set("X-Share-Password", password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	if name := netx.AttachmentName(resp.Header.Get("Content-Disposition")); name != "" {
		return &Download{Name: name, Body: resp.Body}, nil
	}

	defer resp.Body.Close()
	var link struct {
		URL  string `json:"url"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&link); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if link.URL == "" {
		return nil, fmt.Errorf("server returned neither content nor url")
	}

	body, err := netx.OpenPresignedURL(ctx, c.http, link.URL)
	if err != nil {
		return nil, err
	}
	return &Download{Name: link.Name, Body: body}, nil
}

func (c *Client) openAttachment(req *http.Request, fallback string) (*Download, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	name := netx.AttachmentName(resp.Header.Get("Content-Disposition"))
	if name == "" {
		name = fallback
	}
	return &Download{Name: name, Body: resp.Body}, nil
}

func (c *Client) DeleteFile(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/files/"+url.PathEscape(id), nil, nil, true)
}

func (c *Client) CreateShare(ctx context.Context, fileID string, r ShareRequest) (*Share, error) {
	var out Share
	if err := c.doJSON(ctx, http.MethodPost, "/api/files/"+url.PathEscape(fileID)+"/shares", r, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any, auth bool) error {
	if auth && !c.Authenticated() {
		return ErrUnauthenticated
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+c.token)
	}

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// checkStatus turns a non-2xx response into *Error. The body is read but not
// closed.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}

	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&e)
	msg := e.Error
	if msg == "" {
		msg = e.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &Error{Status: resp.StatusCode, Message: msg}
}
