package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	putIn    *s3.PutObjectInput
	putBody  []byte
	getErr   error
	getBody  string
	deleted  []string
	failWith error
}

func (f *fakeAPI) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.putIn = in
	f.putBody, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.getBody))}, nil
}

func (f *fakeAPI) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.deleted = append(f.deleted, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

type fakePresigner struct {
	err     error
	expires time.Duration
}

func (p *fakePresigner) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if p.err != nil {
		return nil, p.err
	}
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	p.expires = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://s3.local/" + *in.Bucket + "/" + *in.Key}, nil
}

func TestS3Store_PutGetDelete(t *testing.T) {
	api := &fakeAPI{getBody: "hello"}
	store := NewS3StoreWithClient(api, &fakePresigner{}, "vault")
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k1", bytes.NewReader([]byte("abc")), 3, "text/plain"))
	assert.Equal(t, "vault", *api.putIn.Bucket)
	assert.Equal(t, "k1", *api.putIn.Key)
	assert.Equal(t, int64(3), *api.putIn.ContentLength)
	assert.Equal(t, []byte("abc"), api.putBody)

	rc, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "hello", string(b))

	require.NoError(t, store.Delete(ctx, "k1"))
	assert.Equal(t, []string{"k1"}, api.deleted)
}

func TestS3Store_GetMissingKey(t *testing.T) {
	store := NewS3StoreWithClient(&fakeAPI{getErr: &types.NoSuchKey{}}, &fakePresigner{}, "vault")

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestS3Store_Errors(t *testing.T) {
	boom := errors.New("boom")
	store := NewS3StoreWithClient(&fakeAPI{failWith: boom, getErr: boom}, &fakePresigner{err: boom}, "vault")
	ctx := context.Background()

	assert.ErrorIs(t, store.Put(ctx, "k", strings.NewReader(""), 0, ""), boom)
	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, store.Delete(ctx, "k"), boom)
	_, err = store.PresignGet(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, boom)
}

func TestS3Store_PresignGet(t *testing.T) {
	p := &fakePresigner{}
	store := NewS3StoreWithClient(&fakeAPI{}, p, "vault")

	url, err := store.PresignGet(context.Background(), "a/b", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://s3.local/vault/a/b", url)
	assert.Equal(t, 15*time.Minute, p.expires)
}

func TestNewS3Store_AppliesConfig(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	origNewS3 := newS3ClientFromConfig
	origNewPre := newS3PresignClient
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNewS3
		newS3PresignClient = origNewPre
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "eu-west-1", lo.Region)
		return aws.Config{}, nil
	}

	var opts s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&opts)
		}
		return &s3.Client{}
	}
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient { return &s3.PresignClient{} }

	store, err := NewS3Store(context.Background(), S3Config{Region: "eu-west-1", BaseEndpoint: "http://minio:9000", Bucket: "b"})
	require.NoError(t, err)
	assert.Equal(t, "b", store.bucket)
	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "http://minio:9000", *opts.BaseEndpoint)
	assert.True(t, opts.UsePathStyle)

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no creds")
	}
	_, err = NewS3Store(context.Background(), S3Config{})
	assert.Error(t, err)
}
