package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/shenikar/alerto360/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectName(t *testing.T) {
	name, err := objectName("JPG")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(name, ".jpg"))
	assert.Len(t, name, nanoidSize+len(".jpg"))

	other, err := objectName(".png")
	require.NoError(t, err)
	assert.NotEqual(t, strings.TrimSuffix(name, ".jpg"), strings.TrimSuffix(other, ".png"))
}

func TestLocalStore_SaveAndDelete(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	path, err := store.Save(context.Background(), []byte("img"), "image/png", ".png")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "img", string(data))

	require.NoError(t, store.Delete(context.Background(), path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// повторное удаление не ошибка
	assert.NoError(t, store.Delete(context.Background(), path))
}

func TestLocalStore_DeleteOutsideDir(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, store.Delete(context.Background(), "/etc/passwd"))
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestLocalStore_Open(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	path, err := store.Save(ctx, pngHeader, "image/png", ".png")
	require.NoError(t, err)

	rc, contentType, err := store.Open(ctx, path)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
	assert.Equal(t, "image/png", contentType)

	require.NoError(t, store.Delete(ctx, path))
	_, _, err = store.Open(ctx, path)
	assert.ErrorIs(t, err, models.ErrImageNotFound)

	_, _, err = store.Open(ctx, "/etc/passwd")
	assert.ErrorContains(t, err, "outside upload dir")
}

type fakeS3 struct {
	put    *s3.PutObjectInput
	body   []byte
	delKey string
	err    error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.put = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.delKey = aws.ToString(in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.put == nil || aws.ToString(f.put.Key) != aws.ToString(in.Key) {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(strings.NewReader(string(f.body))),
		ContentType: f.put.ContentType,
	}, nil
}

func TestS3Store_Save(t *testing.T) {
	fake := &fakeS3{}
	store := &S3Store{client: fake, bucket: "alerto"}

	key, err := store.Save(context.Background(), []byte("jpegdata"), "image/jpeg", ".jpg")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, "incidents/"))
	assert.Equal(t, "alerto", aws.ToString(fake.put.Bucket))
	assert.Equal(t, key, aws.ToString(fake.put.Key))
	assert.Equal(t, "image/jpeg", aws.ToString(fake.put.ContentType))
	assert.Equal(t, "jpegdata", string(fake.body))

	require.NoError(t, store.Delete(context.Background(), key))
	assert.Equal(t, key, fake.delKey)
}

func TestS3Store_Open(t *testing.T) {
	fake := &fakeS3{}
	store := &S3Store{client: fake, bucket: "alerto"}
	ctx := context.Background()

	key, err := store.Save(ctx, []byte("jpegdata"), "image/jpeg", ".jpg")
	require.NoError(t, err)

	rc, contentType, err := store.Open(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "jpegdata", string(data))
	assert.Equal(t, "image/jpeg", contentType)

	_, _, err = store.Open(ctx, "incidents/missing.jpg")
	assert.ErrorIs(t, err, models.ErrImageNotFound)
}

func TestS3Store_Errors(t *testing.T) {
	store := &S3Store{client: &fakeS3{err: errors.New("access denied")}, bucket: "alerto"}

	_, err := store.Save(context.Background(), []byte("x"), "image/png", ".png")
	assert.ErrorContains(t, err, "failed to upload image to s3")
	assert.ErrorContains(t, store.Delete(context.Background(), "incidents/x.png"), "failed to delete image from s3")
	_, _, err = store.Open(context.Background(), "incidents/x.png")
	assert.ErrorContains(t, err, "failed to download image from s3")
}
