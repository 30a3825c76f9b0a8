package s3

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter 是 S3Operator 需要的 S3 API 子集
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewClient 以靜態金鑰建立 S3 客戶端，endpoint 為空時使用 AWS 預設
func NewClient(ctx context.Context, endpoint, region, accessKeyID, secretAccessKey string) (*s3.Client, error) {
	const op = "NewClient"
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to load aws config, err=%w", op, err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

type S3Operator struct {
	client         ObjectPutter
	bucket         string
	publicEndpoint *url.URL
}

func NewS3Operator(client ObjectPutter, bucket, publicBaseURL string) (*S3Operator, error) {
	const op = "NewS3Operator"
	publicEndpoint, err := url.Parse(publicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to parse public base URL, err=%w", op, err)
	}
	return &S3Operator{client: client, bucket: bucket, publicEndpoint: publicEndpoint}, nil
}

// Upload 上傳檔案並回傳公開網址
func (s *S3Operator) Upload(ctx context.Context, key, contentType string, content []byte) (string, error) {
	const op = "S3Operator.Upload"
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to upload file to S3, err=%w", op, err)
	}
	uri := *s.publicEndpoint
	uri.Path = path.Join("/", uri.Path, key)
	return uri.String(), nil
}
