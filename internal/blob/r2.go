package blob

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// R2Uploader — Uploader поверх Cloudflare R2 (S3-совместимый API).
type R2Uploader struct {
	client *s3.Client
	bucket string
	logger *slog.Logger
}

// NewR2Uploader создаёт клиента R2 со статическими ключами и явным endpoint.
// Регион у R2 всегда "auto".
func NewR2Uploader(ctx context.Context, endpoint, accessKeyID, secretAccessKey, bucket string, logger *slog.Logger) (*R2Uploader, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx,
		awscfg.WithRegion("auto"),
		awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка конфигурации клиента R2: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	return &R2Uploader{
		client: client,
		bucket: bucket,
		logger: logger.With("component", "r2"),
	}, nil
}

// Put реализует Uploader.
func (u *R2Uploader) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("ошибка записи объекта %s в R2: %w", key, err)
	}

	u.logger.DebugContext(ctx, "Объект записан в R2", "key", key, "size", len(data))
	return nil
}
