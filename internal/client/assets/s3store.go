package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/tradebook/internal/common"
	"github.com/dmitrijs2005/tradebook/internal/logging"
	"github.com/google/uuid"
)

// S3Config selects a bucket on AWS S3 or an S3-compatible server (MinIO).
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// PublicURL, when set, is the base for display URLs; otherwise URLs are
	// presigned GET requests.
	PublicURL string
	URLExpiry time.Duration
}

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Store keeps attachments as objects. A folder is a key prefix ending in
// "/" marked by an empty object with that key; folder ids are the prefixes.
type S3Store struct {
	client  s3API
	presign *s3.PresignClient
	cfg     S3Config
	log     logging.Logger
}

var _ FileStore = (*S3Store)(nil)

func NewS3Store(ctx context.Context, cfg S3Config, log logging.Logger, optFns ...func(*s3.Options)) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket is required", common.ErrValidation)
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = 15 * time.Minute
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	opts := append([]func(*s3.Options){func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}}, optFns...)
	client := s3.NewFromConfig(awsCfg, opts...)

	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		cfg:     cfg,
		log:     log.With("component", "s3store"),
	}, nil
}

func folderKey(name, parentID string) string {
	return parentID + strings.Trim(name, "/") + "/"
}

func (s *S3Store) FindFolder(ctx context.Context, name, parentID string) (string, error) {
	key := folderKey(name, parentID)
	ok, err := s.exists(ctx, key)
	if err != nil || !ok {
		return "", err
	}
	return key, nil
}

func (s *S3Store) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	key := folderKey(name, parentID)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return "", mapS3Error(err)
	}
	s.log.Info(ctx, "folder marker created", "key", key)
	return key, nil
}

func (s *S3Store) FolderExists(ctx context.Context, id string) (bool, error) {
	if !strings.HasSuffix(id, "/") {
		return false, nil
	}
	return s.exists(ctx, id)
}

func (s *S3Store) Upload(ctx context.Context, folderID, filename, contentType string, r io.Reader) (string, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	key := folderID + uuid.NewString() + "-" + filename
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return "", mapS3Error(err)
	}
	return key, nil
}

func (s *S3Store) URL(ctx context.Context, fileID string) (string, error) {
	if s.cfg.PublicURL != "" {
		return strings.TrimRight(s.cfg.PublicURL, "/") + "/" + fileID, nil
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(fileID),
	}, s3.WithPresignExpires(s.cfg.URLExpiry))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", fileID, err)
	}
	return req.URL, nil
}

func (s *S3Store) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	mapped := mapS3Error(err)
	if errors.Is(mapped, common.ErrNotFound) {
		return false, nil
	}
	return false, mapped
}

// mapS3Error classifies SDK failures by their API error code.
func mapS3Error(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return fmt.Errorf("%w: %w", common.ErrNotFound, err)
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return fmt.Errorf("%w: %w", common.ErrUnauthorized, err)
		}
	}
	return fmt.Errorf("%w: %w", common.ErrTransport, err)
}
