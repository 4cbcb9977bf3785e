package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"pulsepay/internal/models"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ReceiptService archives successful-charge receipts as JSON objects so
// statements can be rebuilt without replaying the event log.
type ReceiptService interface {
	Archive(ctx context.Context, event *models.PaymentEvent) error
}

type minioReceiptService struct {
	client *minio.Client
	bucket string
}

func NewMinioReceiptService(endpoint, accessKey, secretKey string, useSSL bool, bucket string) (ReceiptService, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	svc := &minioReceiptService{client: client, bucket: bucket}
	if err := svc.ensureBucket(context.Background()); err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *minioReceiptService) Archive(ctx context.Context, event *models.PaymentEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	objectName := fmt.Sprintf("%s/%s.json", event.CreatedAt.UTC().Format("2006/01/02"), event.ID)
	_, err = s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}

func (s *minioReceiptService) ensureBucket(ctx context.Context) error {
	found, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !found {
		return s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	}
	return nil
}
