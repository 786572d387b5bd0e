package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityKey(t *testing.T) {
	user := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	reading := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	assert.Equal(t,
		"users/11111111-1111-1111-1111-111111111111/activities/22222222-2222-2222-2222-222222222222/gpx_file.gpx",
		ActivityKey(user, reading, "gpx"))
	assert.Equal(t, "application/gpx+xml", ContentType("gpx"))
	assert.Equal(t, "application/octet-stream", ContentType("fit"))
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	u, err := m.Put(ctx, "a/b.gpx", strings.NewReader("<gpx/>"), "application/gpx+xml")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "mem://a/b.gpx"))

	data, ct, ok := m.Get("a/b.gpx")
	require.True(t, ok)
	assert.Equal(t, "<gpx/>", string(data))
	assert.Equal(t, "application/gpx+xml", ct)

	_, err = m.URL(ctx, "a/b.gpx", time.Hour)
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, "a/b.gpx"))
	_, err = m.URL(ctx, "a/b.gpx", time.Hour)
	assert.ErrorIs(t, err, ErrNotFound)
}

type fakeS3 struct {
	put     *s3.PutObjectInput
	body    string
	deleted string
	expires time.Duration
	err     error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.put = in
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = *in.Key
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://bucket.example/" + *in.Key + "?sig=x"}, nil
}

func TestS3StorePut(t *testing.T) {
	fake := &fakeS3{}
	s := newS3Store(fake, fake, "activities", 0)

	u, err := s.Put(context.Background(), "users/u/activities/r/gpx_file.gpx", strings.NewReader("<gpx/>"), "application/gpx+xml")
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.example/users/u/activities/r/gpx_file.gpx?sig=x", u)

	require.NotNil(t, fake.put)
	assert.Equal(t, "activities", *fake.put.Bucket)
	assert.Equal(t, types.ServerSideEncryptionAes256, fake.put.ServerSideEncryption)
	assert.Equal(t, "application/gpx+xml", *fake.put.ContentType)
	assert.Equal(t, "<gpx/>", fake.body)
	assert.Equal(t, DefaultURLTTL, fake.expires)
}

func TestS3StoreErrorsAndDelete(t *testing.T) {
	fake := &fakeS3{err: errors.New("access denied")}
	s := newS3Store(fake, fake, "activities", time.Hour)

	_, err := s.Put(context.Background(), "k", strings.NewReader("x"), "text/plain")
	assert.ErrorContains(t, err, "access denied")

	_, err = s.URL(context.Background(), "k", 0)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, fake.expires)

	require.NoError(t, s.Delete(context.Background(), "k"))
	assert.Equal(t, "k", fake.deleted)
}
