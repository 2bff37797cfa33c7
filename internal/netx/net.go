// Package netx holds small HTTP helpers used by the client.
package netx

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
)

// OpenPresignedURL GETs an object through a presigned URL. The caller closes
// the returned body. No credentials are sent: the signature is in the URL.
func OpenPresignedURL(ctx context.Context, client *http.Client, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("download failed: %s; body: %s", resp.Status, string(b))
	}
	return resp.Body, nil
}

// AttachmentName returns the base name of the filename parameter of a
// Content-Disposition header, or "" when there is none.
func AttachmentName(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	name := filepath.Base(params["filename"])
	if name == "." || name == "/" || name == string(filepath.Separator) {
		return ""
	}
	return name
}
