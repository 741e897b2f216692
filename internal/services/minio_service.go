package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArchiveService keeps an audit copy of every confirmed upload and every
// generated export workbook in object storage. All callers treat it as
// best-effort: a failed archive is logged, never surfaced to the user.
type ArchiveService interface {
	EnsureBucketExists(ctx context.Context) error
	StoreUpload(ctx context.Context, dataset string, data []byte) (string, error)
	StoreExport(ctx context.Context, code string, data []byte) (string, error)
	GetPresignedURL(objectName string, expiry time.Duration) (string, error)
}

type minioArchive struct {
	client *minio.Client
	bucket string
}

// NewMinioArchive connects to a MinIO/S3 endpoint and returns an archive
// over one bucket.
func NewMinioArchive(endpoint, accessKey, secretKey string, useSSL bool, bucket string) (ArchiveService, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	return &minioArchive{client: client, bucket: bucket}, nil
}

func (m *minioArchive) EnsureBucketExists(ctx context.Context) error {
	found, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !found {
		return m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
	}
	return nil
}

func (m *minioArchive) StoreUpload(ctx context.Context, dataset string, data []byte) (string, error) {
	object := fmt.Sprintf("uploads/%s/%s-%s", dataset, time.Now().UTC().Format("20060102T150405Z"), uuid.NewString())
	return m.put(ctx, object, data)
}

func (m *minioArchive) StoreExport(ctx context.Context, code string, data []byte) (string, error) {
	object := fmt.Sprintf("exports/%s/%s-%s.xlsx", code, time.Now().UTC().Format("20060102T150405Z"), uuid.NewString())
	return m.put(ctx, object, data)
}

func (m *minioArchive) put(ctx context.Context, object string, data []byte) (string, error) {
	_, err := m.client.PutObject(ctx, m.bucket, object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return "", err
	}
	return object, nil
}

func (m *minioArchive) GetPresignedURL(objectName string, expiry time.Duration) (string, error) {
	url, err := m.client.PresignedGetObject(context.Background(), m.bucket, objectName, expiry, nil)
	if err != nil {
		return "", err
	}
	return url.String(), nil
}
