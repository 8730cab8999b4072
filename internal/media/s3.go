package media

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config はS3互換ストレージの設定。MinIOではEndpointを指定する。
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PublicURL string // 公開URLのベース。空ならEndpoint/Bucketを使う
}

// objectPutter はs3.ClientのうちUploadで使う部分。
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader はS3互換ストレージへ保存するUploader。
type S3Uploader struct {
	client    objectPutter
	bucket    string
	publicURL string
	now       func() time.Time
}

// NewS3Uploader は静的クレデンシャルでS3クライアントを構築する。
func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	publicURL := cfg.PublicURL
	if publicURL == "" {
		if cfg.Endpoint != "" {
			publicURL = joinURL(cfg.Endpoint, cfg.Bucket)
		} else {
			publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}

	return &S3Uploader{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: publicURL,
		now:       time.Now,
	}, nil
}

// Upload はオブジェクトをPutObjectで保存する。
func (u *S3Uploader) Upload(ctx context.Context, folder, contentType string, r io.Reader) (string, error) {
	key := NewKey(folder, contentType, u.now().UTC())
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object: %w", err)
	}
	return key, nil
}

// URL はオブジェクトの公開URLを返す。
func (u *S3Uploader) URL(key string) string {
	return joinURL(u.publicURL, key)
}
