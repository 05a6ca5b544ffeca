package services

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/cyclesync/internal/common"
	sc "github.com/dmitrijs2005/cyclesync/internal/server/config"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}

	now = time.Now
)

// ExportService hands out presigned S3 PUT URLs the client uploads its
// data export to.
type ExportService struct {
	config *sc.Config
}

func NewExportService(config *sc.Config) *ExportService {
	return &ExportService{config: config}
}

// ExportKey is the object key of a new export for userID.
func ExportKey(userID string) string {
	d := now().UTC()
	return fmt.Sprintf("exports/%s/%04d/%02d/%02d/%v.json", userID, d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *ExportService) getPresignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return newS3PresignClient(client), nil
}

// CreateExport returns the key and a presigned PUT URL for a new export of
// userID's data.
func (s *ExportService) CreateExport(ctx context.Context, userID string) (string, string, error) {
	if userID == "" {
		return "", "", common.ErrorUnauthorized
	}

	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return "", "", err
	}

	bucket := s.config.S3Bucket
	key := ExportKey(userID)
	contentType := "application/json"

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		ContentType: &contentType,
	}, s3.WithPresignExpires(s.config.ExportURLExpiry))
	if err != nil {
		return "", "", err
	}

	return key, req.URL, nil
}
