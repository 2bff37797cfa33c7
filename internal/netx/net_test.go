package netx

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenPresignedURL(t *testing.T) {
	t.Run("success 200 OK", func(t *testing.T) {
		var gotMethod, gotAuth, gotQuery string

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotAuth = r.Header.Get("Authorization")
			gotQuery = r.URL.Query().Get("X-Amz-Signature")
			_, _ = io.WriteString(w, "hello, s3")
		}))
		defer ts.Close()

		body, err := OpenPresignedURL(context.Background(), ts.Client(), ts.URL+"/bucket/key?X-Amz-Signature=abc")
		require.NoError(t, err)
		defer body.Close()

		b, err := io.ReadAll(body)
		require.NoError(t, err)
		assert.Equal(t, "hello, s3", string(b))
		assert.Equal(t, http.MethodGet, gotMethod)
		assert.Empty(t, gotAuth)
		assert.Equal(t, "abc", gotQuery)
	})

	t.Run("non-200 -> error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, "SignatureDoesNotMatch")
		}))
		defer ts.Close()

		_, err := OpenPresignedURL(context.Background(), ts.Client(), ts.URL)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "403")
		assert.Contains(t, err.Error(), "SignatureDoesNotMatch")
	})

	t.Run("bad url", func(t *testing.T) {
		_, err := OpenPresignedURL(context.Background(), http.DefaultClient, "://bad")
		assert.Error(t, err)
	})
}

func TestAttachmentName(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{`attachment; filename="report.pdf"`, "report.pdf"},
		{`attachment; filename="../../etc/passwd"`, "passwd"},
		{`attachment`, ""},
		{``, ""},
		{`;;;`, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AttachmentName(tt.header), tt.header)
	}
}
