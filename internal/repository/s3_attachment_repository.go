package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/spec-kit/account-service/internal/domain"
)

// S3API is the subset of the S3 client used for attachments.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

type s3AttachmentRepository struct {
	client S3API
	bucket string
}

// NewS3AttachmentRepository stores blobs as objects in bucket.
func NewS3AttachmentRepository(client S3API, bucket string) AttachmentRepository {
	return &s3AttachmentRepository{client: client, bucket: bucket}
}

func (r *s3AttachmentRepository) Put(ctx context.Context, attachment *domain.Attachment) error {
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(attachment.Key),
		Body:          bytes.NewReader(attachment.Data),
		ContentType:   aws.String(attachment.ContentType),
		ContentLength: aws.Int64(int64(len(attachment.Data))),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", attachment.Key, err)
	}
	attachment.CreatedAt = time.Now().UTC()
	return nil
}

func (r *s3AttachmentRepository) Get(ctx context.Context, key string) (*domain.Attachment, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	attachment := &domain.Attachment{
		Key:         key,
		ContentType: aws.ToString(out.ContentType),
		Data:        data,
	}
	if out.LastModified != nil {
		attachment.CreatedAt = *out.LastModified
	}
	return attachment, nil
}

func (r *s3AttachmentRepository) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	objects := make([]types.ObjectIdentifier, 0, len(keys))
	for _, key := range keys {
		objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
	}
	_, err := r.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(r.bucket),
		Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("delete objects: %w", err)
	}
	return nil
}
