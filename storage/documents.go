package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultMaxDocumentBytes int64 = 20 * 1024 * 1024

// DocumentStorage keeps original uploads (PDFs, scans, text files) in
// MinIO/S3 so the extracted text in the database can always be traced back
// to its source file.
type DocumentStorage struct {
	client   *minio.Client
	bucket   string
	maxBytes int64
}

// NewDocumentStorageFromEnv initialises DocumentStorage from MINIO_*
// environment variables. Returns (nil, nil) when storage is not configured;
// the ingest path then keeps only extracted text.
func NewDocumentStorageFromEnv() (*DocumentStorage, error) {
	endpoint := strings.TrimSpace(os.Getenv("MINIO_ENDPOINT"))
	accessKey := strings.TrimSpace(os.Getenv("MINIO_ACCESS_KEY"))
	secretKey := strings.TrimSpace(os.Getenv("MINIO_SECRET_KEY"))
	bucket := strings.TrimSpace(os.Getenv("MINIO_BUCKET"))
	if endpoint == "" || accessKey == "" || secretKey == "" || bucket == "" {
		return nil, nil
	}

	useSSL := strings.EqualFold(strings.TrimSpace(os.Getenv("MINIO_USE_SSL")), "true")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	maxBytes := defaultMaxDocumentBytes
	if raw := strings.TrimSpace(os.Getenv("MINIO_MAX_DOCUMENT_BYTES")); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 {
			maxBytes = parsed
		}
	}

	return &DocumentStorage{
		client:   client,
		bucket:   bucket,
		maxBytes: maxBytes,
	}, nil
}

// Enabled reports whether uploads will actually be persisted.
func (s *DocumentStorage) Enabled() bool {
	return s != nil && s.client != nil
}

// Upload stores raw document bytes under documents/<ownerID>/<uuid><ext> and
// returns the object key.
func (s *DocumentStorage) Upload(ctx context.Context, ownerID uint64, fileHeader *multipart.FileHeader, data []byte) (string, error) {
	if !s.Enabled() {
		return "", errors.New("document storage not configured")
	}
	if fileHeader == nil {
		return "", errors.New("document file not provided")
	}
	if int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("document size exceeds %d bytes", s.maxBytes)
	}

	contentType := strings.TrimSpace(fileHeader.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if !isAllowedDocumentContent(contentType) {
		return "", fmt.Errorf("unsupported document content type %q", contentType)
	}

	ext := strings.ToLower(strings.TrimSpace(filepath.Ext(fileHeader.Filename)))
	if ext == "" {
		ext = documentExtension(contentType)
	}
	objectName := path.Join("documents", strconv.FormatUint(ownerID, 10), uuid.NewString()+ext)

	uploadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := s.client.PutObject(uploadCtx, s.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload document: %w", err)
	}
	return objectName, nil
}

// Remove deletes a stored document object. Missing keys are not an error.
func (s *DocumentStorage) Remove(ctx context.Context, objectKey string) error {
	if !s.Enabled() {
		return nil
	}
	trimmed := strings.TrimPrefix(strings.TrimSpace(objectKey), "/")
	if trimmed == "" {
		return nil
	}

	removeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.client.RemoveObject(removeCtx, s.bucket, trimmed, minio.RemoveObjectOptions{})
}

// PresignedURL returns a temporary download link for a stored object.
func (s *DocumentStorage) PresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	if !s.Enabled() {
		return "", errors.New("document storage not configured")
	}
	trimmed := strings.TrimPrefix(strings.TrimSpace(objectKey), "/")
	if trimmed == "" {
		return "", nil
	}
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	presignCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	link, err := s.client.PresignedGetObject(presignCtx, s.bucket, trimmed, expiry, nil)
	if err != nil {
		return "", err
	}
	return link.String(), nil
}

func isAllowedDocumentContent(contentType string) bool {
	base := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(base, ";"); idx >= 0 {
		base = strings.TrimSpace(base[:idx])
	}
	switch base {
	case "application/pdf", "application/x-pdf":
		return true
	case "text/plain", "text/csv", "text/markdown":
		return true
	case "application/octet-stream":
		// Browsers often send this for .txt/.pdf; content sniffing happens
		// later during text extraction.
		return true
	default:
		return false
	}
}

func documentExtension(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "application/pdf", "application/x-pdf":
		return ".pdf"
	case "text/csv":
		return ".csv"
	case "text/markdown":
		return ".md"
	case "text/plain":
		return ".txt"
	default:
		return ".bin"
	}
}
