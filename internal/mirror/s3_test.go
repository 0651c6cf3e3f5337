package mirror

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	bucket, key, contentType string
	body                     []byte
	err                      error
}

func (f *fakeUploader) Upload(ctx context.Context, in *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	f.contentType = aws.ToString(in.ContentType)
	f.body, _ = io.ReadAll(in.Body)
	return &manager.UploadOutput{Location: "s3://" + f.bucket + "/" + f.key}, nil
}

func TestArchiveUploadsUnderJobPrefix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "01TOKEN-notes.pdf")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))
	up := &fakeUploader{}
	a := newS3Archiver(up, Options{Bucket: "leech", Prefix: "/teraleech/"})

	require.NoError(t, a.Archive(context.Background(), "job-1", path, "notes.pdf"))
	assert.Equal(t, "leech", up.bucket)
	assert.Equal(t, "teraleech/job-1/notes.pdf", up.key)
	assert.Equal(t, "application/pdf", up.contentType)
	assert.Equal(t, "data", string(up.body))
}

func TestArchiveErrors(t *testing.T) {
	a := newS3Archiver(&fakeUploader{}, Options{Bucket: "leech"})
	require.Error(t, a.Archive(context.Background(), "j", "/missing", "x.bin"))

	path := filepath.Join(t.TempDir(), "x.bin")
	require.NoError(t, os.WriteFile(path, nil, 0644))
	a = newS3Archiver(&fakeUploader{err: errors.New("denied")}, Options{Bucket: "leech"})
	require.ErrorContains(t, a.Archive(context.Background(), "j", path, "x.bin"), "denied")
	assert.Equal(t, "j/x.bin", a.Key("j", "x.bin"))
}
