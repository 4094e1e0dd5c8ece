package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// Options configures the S3 client. Empty credentials fall back to the
// default AWS chain; a non-empty Endpoint targets an S3-compatible store.
type Options struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	// Password seals uploads and opens sealed downloads; empty stores plaintext.
	Password string
}

// S3Client wraps the AWS S3 client with envelope encryption.
type S3Client struct {
	client     *s3.Client
	uploader   *manager.Uploader
	bucketName string
	password   string
}

// FileMetadata represents metadata about a stored file
type FileMetadata struct {
	OriginalName     string            `json:"original_name"`
	ContentType      string            `json:"content_type"`
	Size             int64             `json:"size"`
	Encrypted        bool              `json:"encrypted"`
	Metadata         map[string]string `json:"metadata"`
	EncryptionFormat string            `json:"encryption_format,omitempty"`
}

// NewS3Client creates a new S3 client
func NewS3Client(ctx context.Context, opts Options) (*S3Client, error) {
	var loaders []func(*awscfg.LoadOptions) error
	if opts.Region != "" {
		loaders = append(loaders, awscfg.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loaders = append(loaders, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	cli := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Client{
		client:     cli,
		uploader:   manager.NewUploader(cli),
		bucketName: opts.Bucket,
		password:   opts.Password,
	}, nil
}

// HeadBucket reports whether the configured bucket is reachable.
func (s *S3Client) HeadBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucketName)})
	return err
}

// Download fetches bucket/key and opens it when it is sealed.
func (s *S3Client) Download(ctx context.Context, bucket, key string) ([]byte, *FileMetadata, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read S3 object: %w", err)
	}

	metadata := &FileMetadata{Metadata: make(map[string]string)}
	for k, v := range result.Metadata {
		metadata.Metadata[strings.ToLower(k)] = v
	}
	metadata.OriginalName = metadata.Metadata["name"]
	if result.ContentType != nil {
		metadata.ContentType = *result.ContentType
	}
	if result.ContentLength != nil {
		metadata.Size = *result.ContentLength
	}

	if Sealed(data) {
		if s.password == "" {
			return nil, nil, fmt.Errorf("object %s is sealed but no password is configured", key)
		}
		data, err = Open(data, s.password)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decrypt data: %w", err)
		}
		metadata.Encrypted = true
		metadata.EncryptionFormat = FormatGCM
	}

	log.Info().
		Str("bucket", bucket).
		Str("key", key).
		Bool("encrypted", metadata.Encrypted).
		Int("size", len(data)).
		Msg("downloaded file from S3")
	return data, metadata, nil
}

// UploadFile stores data under key, sealing it when a password is configured.
func (s *S3Client) UploadFile(ctx context.Context, key string, data []byte, metadata *FileMetadata) (string, error) {
	body := data
	s3Metadata := make(map[string]string)
	if metadata != nil {
		if metadata.OriginalName != "" {
			s3Metadata["name"] = metadata.OriginalName
		}
		for k, v := range metadata.Metadata {
			s3Metadata[k] = v
		}
	}
	if s.password != "" {
		sealed, err := Seal(data, s.password)
		if err != nil {
			log.Error().Err(err).Str("key", key).Msg("UploadFile: encryption failed")
			return "", fmt.Errorf("failed to encrypt data: %w", err)
		}
		body = sealed
		s3Metadata["encrypted"] = "true"
		s3Metadata["encryption-format"] = FormatGCM
	}

	contentType := "application/pdf"
	if metadata != nil && metadata.ContentType != "" {
		contentType = metadata.ContentType
	}

	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		Metadata:    s3Metadata,
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("UploadFile: upload failed")
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	log.Info().
		Str("key", key).
		Int("size", len(body)).
		Bool("encrypted", s.password != "").
		Str("location", out.Location).
		Msg("uploaded file to S3")
	return out.Location, nil
}

// ListNextVersion returns the next available integer suffix for a base key using pattern baseKey_v{N}
func (s *S3Client) ListNextVersion(ctx context.Context, baseKey string) (int, error) {
	if baseKey == "" {
		return 1, nil
	}

	prefix := baseKey + "_v"
	maxVersion := 0

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucketName),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 1, fmt.Errorf("list versions failed: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			if n, ok := parseVersion(*obj.Key, prefix); ok && n > maxVersion {
				maxVersion = n
			}
		}
	}

	return maxVersion + 1, nil
}

// parseVersion reads N from prefix+"N" or prefix+"N.ext".
func parseVersion(key, prefix string) (int, bool) {
	if !strings.HasPrefix(key, prefix) {
		return 0, false
	}
	v := strings.TrimPrefix(key, prefix)
	if dot := strings.IndexByte(v, '.'); dot >= 0 {
		v = v[:dot]
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

// VersionedKey joins a base key, version and extension as baseKey_v{N}.ext.
func VersionedKey(baseKey string, version int, ext string) string {
	return fmt.Sprintf("%s_v%d%s", baseKey, version, ext)
}
