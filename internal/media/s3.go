package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Config represents the settings required to talk to S3 or an S3-compatible API.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	PublicURL       string
	KeyPrefix       string
	ForcePathStyle  bool
	AccessKeyID     string
	SecretAccessKey string
}

// NewPublisher wires an S3-backed publisher if the configuration is complete,
// otherwise the inline data URL publisher.
func NewPublisher(ctx context.Context, cfg Config) (Publisher, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return NewDataURLPublisher(), nil
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}

	// S3-compatible providers hand out plain key pairs; the default chain
	// covers everything else.
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		loadOpts = append(loadOpts, config.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
				if service == s3.ServiceID {
					return aws.Endpoint{
						URL:           endpoint,
						PartitionID:   "aws",
						SigningRegion: cfg.Region,
					}, nil
				}
				return aws.Endpoint{}, &aws.EndpointNotFoundError{}
			}),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws sdk config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.UsePathStyle = cfg.ForcePathStyle
		}
	})

	keyPrefix := strings.Trim(cfg.KeyPrefix, "/")

	// Fallback so S3-compatible storage without PublicURL still works for reads.
	publicURL := strings.TrimSuffix(cfg.PublicURL, "/")
	if publicURL == "" && cfg.Endpoint != "" && cfg.ForcePathStyle {
		publicURL = fmt.Sprintf("%s/%s", strings.TrimSuffix(cfg.Endpoint, "/"), cfg.Bucket)
	}

	return &s3Publisher{
		client:  client,
		bucket:  cfg.Bucket,
		region:  cfg.Region,
		baseURL: publicURL,
		prefix:  keyPrefix,
	}, nil
}

type s3Publisher struct {
	client  *s3.Client
	bucket  string
	region  string
	baseURL string
	prefix  string
}

// Publish stores the image in the configured bucket and returns a public URL.
func (p *s3Publisher) Publish(ctx context.Context, data []byte, contentType, filename string) (ImageRef, error) {
	if len(data) == 0 {
		return ImageRef{}, errors.New("image data is required")
	}

	key := p.buildKey(filename)

	putInput := &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		putInput.ContentType = aws.String(contentType)
	}

	if _, err := p.client.PutObject(ctx, putInput); err != nil {
		return ImageRef{}, fmt.Errorf("put object: %w", err)
	}

	return ImageRef{
		Key: key,
		URL: p.objectURL(key),
	}, nil
}

func (p *s3Publisher) buildKey(filename string) string {
	name := uuid.NewString()
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != "" {
		name += ext
	}

	if p.prefix == "" {
		return name
	}

	return path.Join(p.prefix, name)
}

func (p *s3Publisher) objectURL(key string) string {
	if p.baseURL != "" {
		return fmt.Sprintf("%s/%s", p.baseURL, key)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", p.bucket, p.region, key)
}
