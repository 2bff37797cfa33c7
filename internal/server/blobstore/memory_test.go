package blobstore

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	var s Store = NewMemoryStore()

	require.NoError(t, s.Put(ctx, "a", strings.NewReader("payload"), 7, "text/plain"))

	rc, err := s.Get(ctx, "a")
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))

	_, err = s.PresignGet(ctx, "a", time.Minute)
	assert.ErrorIs(t, err, ErrPresignUnsupported)

	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}
