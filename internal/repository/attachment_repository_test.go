package repository

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/account-service/internal/domain"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]*s3.PutObjectInput
	bodies  map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string]*s3.PutObjectInput{}, bodies: map[string][]byte{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = in
	f.bodies[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	data, ok := f.bodies[key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(bytes.NewReader(data)),
		ContentType: f.objects[key].ContentType,
	}, nil
}

func (f *fakeS3) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, obj := range in.Delete.Objects {
		delete(f.bodies, aws.ToString(obj.Key))
		delete(f.objects, aws.ToString(obj.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func TestAttachmentRepositories(t *testing.T) {
	repos := map[string]AttachmentRepository{
		"memory": NewMemoryAttachmentRepository(),
		"s3":     NewS3AttachmentRepository(newFakeS3(), "accounts"),
	}

	for name, repo := range repos {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			att := &domain.Attachment{Key: "users/1/doc", ContentType: "application/pdf", Data: []byte("%PDF-1.7")}

			require.NoError(t, repo.Put(ctx, att))

			got, err := repo.Get(ctx, "users/1/doc")
			require.NoError(t, err)
			assert.Equal(t, "application/pdf", got.ContentType)
			assert.Equal(t, []byte("%PDF-1.7"), got.Data)

			require.NoError(t, repo.Delete(ctx, "users/1/doc"))
			_, err = repo.Get(ctx, "users/1/doc")
			assert.ErrorIs(t, err, ErrNotFound)

			assert.NoError(t, repo.Delete(ctx))
		})
	}
}

func TestS3AttachmentRepository_SetsBucketAndLength(t *testing.T) {
	client := newFakeS3()
	repo := NewS3AttachmentRepository(client, "accounts")

	require.NoError(t, repo.Put(context.Background(), &domain.Attachment{Key: "k", ContentType: "image/png", Data: []byte{1, 2, 3}}))

	in := client.objects["k"]
	require.NotNil(t, in)
	assert.Equal(t, "accounts", aws.ToString(in.Bucket))
	assert.Equal(t, int64(3), aws.ToInt64(in.ContentLength))
}
