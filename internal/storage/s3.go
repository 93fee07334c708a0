package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/yourorg/strategy-optimizer/internal/config"
)

// S3Storage implements the Storage interface for Amazon S3 and compatible stores
type S3Storage struct {
	bucket     string
	prefix     string
	baseURL    string
	s3Client   *s3.S3
	s3Uploader *s3manager.Uploader
}

// NewS3Storage creates a new S3Storage
func NewS3Storage(cfg config.S3StorageConfig) (*S3Storage, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(cfg.ForcePathStyle)
	}

	// Create AWS session
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	s3Client := s3.New(sess)

	// Create the bucket if it doesn't exist
	_, err = s3Client.HeadBucket(&s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		_, err = s3Client.CreateBucket(&s3.CreateBucketInput{
			Bucket: aws.String(cfg.Bucket),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 bucket: %w", err)
		}
	}

	baseURL := fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	if cfg.Endpoint != "" {
		baseURL = strings.TrimSuffix(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}

	return &S3Storage{
		bucket:     cfg.Bucket,
		prefix:     strings.Trim(cfg.Prefix, "/"),
		baseURL:    baseURL,
		s3Client:   s3Client,
		s3Uploader: s3manager.NewUploader(sess),
	}, nil
}

func (s *S3Storage) objectKey(key string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if s.prefix == "" {
		return key, nil
	}
	return s.prefix + "/" + key, nil
}

// Store uploads a file to S3
func (s *S3Storage) Store(ctx context.Context, key, contentType string, body []byte) (string, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return "", err
	}

	_, err = s.s3Uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	return s.baseURL + "/" + objectKey, nil
}

// Get downloads a file from S3
func (s *S3Storage) Get(ctx context.Context, key string) ([]byte, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}

	out, err := s.s3Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}
