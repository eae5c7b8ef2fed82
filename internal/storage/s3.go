package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// ObjectGetter is the part of the S3 API the loader needs; *s3.Client implements it.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Client reads image objects from a bucket.
type S3Client struct {
	client     ObjectGetter
	bucketName string
}

// Object is a downloaded S3 object.
type Object struct {
	Key         string
	ContentType string
	Name        string
	Data        []byte
}

// NewS3Client creates a client from the default AWS credential chain.
func NewS3Client(ctx context.Context, bucketName string) (*S3Client, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewS3ClientFrom(s3.NewFromConfig(cfg), bucketName), nil
}

// NewS3ClientFrom wraps an existing getter.
func NewS3ClientFrom(getter ObjectGetter, bucketName string) *S3Client {
	return &S3Client{client: getter, bucketName: bucketName}
}

// Ping checks that the default bucket is reachable with the current credentials.
func (s *S3Client) Ping(ctx context.Context) error {
	if s.bucketName == "" {
		return fmt.Errorf("bucket not configured")
	}
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucketName)})
	return err
}

// DownloadFile reads at most maxBytes of bucket/key. An empty bucket means the default one.
func (s *S3Client) DownloadFile(ctx context.Context, bucket, key string, maxBytes int64) (*Object, error) {
	if bucket == "" {
		bucket = s.bucketName
	}
	if bucket == "" {
		return nil, fmt.Errorf("no bucket given for key %q", key)
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer result.Body.Close()

	if result.ContentLength != nil && maxBytes > 0 && *result.ContentLength > maxBytes {
		return nil, errTooLarge(*result.ContentLength, maxBytes)
	}

	data, err := readLimited(result.Body, maxBytes)
	if err != nil {
		return nil, err
	}

	obj := &Object{Key: key, Data: data, ContentType: aws.ToString(result.ContentType)}
	// x-amz-meta-name comes back as either case depending on the uploader
	for k, v := range result.Metadata {
		if strings.EqualFold(k, "name") {
			obj.Name = v
			break
		}
	}

	log.Debug().
		Str("bucket", bucket).
		Str("key", key).
		Str("content_type", obj.ContentType).
		Int("size", len(data)).
		Msg("downloaded object from S3")
	return obj, nil
}

// parseS3Ref splits "s3://bucket/key". The bucket may be empty ("s3:///key").
func parseS3Ref(ref string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(ref, s3Scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || key == "" {
		return "", "", fmt.Errorf("malformed S3 reference %q", ref)
	}
	return bucket, key, nil
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, errTooLarge(int64(len(data)), maxBytes)
	}
	return data, nil
}
