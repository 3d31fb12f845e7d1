package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/apexbridge-tech/bugspotter/internal/apperrors"
)

const (
	multipartThreshold = 5 * 1024 * 1024
	multipartPartSize  = 5 * 1024 * 1024
	maxUploadRetries   = 3
)

// S3Config configures the S3-compatible backend. Endpoint, when set,
// points at a non-AWS S3-compatible service (MinIO, Cloudflare R2);
// ForcePathStyle is required for most of those.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
	// SSE is "" (none), "AES256", or "aws:kms".
	SSE          string
	SSEKMSKeyID  string
	StorageClass string
}

// S3Storage implements Storage against any S3-compatible object store.
type S3Storage struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	cfg      S3Config
}

// NewS3Storage builds an S3 client. Credentials come from cfg when set,
// otherwise the default AWS credential chain (environment, shared
// config, instance role) is used.
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("storage: s3 bucket and region are required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryMaxAttempts(maxUploadRetries),
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, apperrors.NewStorageConnectionError(fmt.Errorf("load aws config: %w", err))
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = multipartPartSize
	})

	return &S3Storage{client: client, uploader: uploader, bucket: cfg.Bucket, cfg: cfg}, nil
}

func (s *S3Storage) sseInput() (types.ServerSideEncryption, *string) {
	switch s.cfg.SSE {
	case "AES256":
		return types.ServerSideEncryptionAes256, nil
	case "aws:kms":
		var keyID *string
		if s.cfg.SSEKMSKeyID != "" {
			keyID = aws.String(s.cfg.SSEKMSKeyID)
		}
		return types.ServerSideEncryptionAwsKms, keyID
	default:
		return "", nil
	}
}

func (s *S3Storage) putObject(ctx context.Context, key string, data []byte, contentType string) (*UploadResult, error) {
	sse, kmsKeyID := s.sseInput()
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}
	if sse != "" {
		input.ServerSideEncryption = sse
		input.SSEKMSKeyId = kmsKeyID
	}
	if s.cfg.StorageClass != "" {
		input.StorageClass = types.StorageClass(s.cfg.StorageClass)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return nil, apperrors.NewStorageUploadError(err)
	}
	return &UploadResult{Key: key, URL: s.objectURL(key), Size: int64(len(data)), ContentType: contentType}, nil
}

func (s *S3Storage) objectURL(key string) string {
	if s.cfg.Endpoint != "" && s.cfg.ForcePathStyle {
		return fmt.Sprintf("%s/%s/%s", s.cfg.Endpoint, s.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.cfg.Region, key)
}

func (s *S3Storage) UploadScreenshot(ctx context.Context, projectID, bugID string, data []byte) (*UploadResult, error) {
	if err := validateIDs(projectID, bugID); err != nil {
		return nil, apperrors.NewStorageValidationError(err.Error())
	}
	return s.putObject(ctx, screenshotKey(projectID, bugID), data, "image/png")
}

func (s *S3Storage) UploadThumbnail(ctx context.Context, projectID, bugID string, data []byte) (*UploadResult, error) {
	if err := validateIDs(projectID, bugID); err != nil {
		return nil, apperrors.NewStorageValidationError(err.Error())
	}
	return s.putObject(ctx, thumbnailKey(projectID, bugID), data, "image/jpeg")
}

func (s *S3Storage) UploadReplayMetadata(ctx context.Context, projectID, bugID string, metadata []byte) (*UploadResult, error) {
	if err := validateIDs(projectID, bugID); err != nil {
		return nil, apperrors.NewStorageValidationError(err.Error())
	}
	return s.putObject(ctx, replayMetaKey(projectID, bugID), metadata, "application/json")
}

func (s *S3Storage) UploadReplayChunk(ctx context.Context, projectID, bugID string, chunkIndex int, data []byte) (*UploadResult, error) {
	if err := validateIDs(projectID, bugID); err != nil {
		return nil, apperrors.NewStorageValidationError(err.Error())
	}
	return s.putObject(ctx, replayChunkKey(projectID, bugID, chunkIndex), data, "application/gzip")
}

func (s *S3Storage) UploadAttachment(ctx context.Context, projectID, bugID, filename string, data []byte) (*UploadResult, error) {
	if err := validateIDs(projectID, bugID); err != nil {
		return nil, apperrors.NewStorageValidationError(err.Error())
	}
	return s.putObject(ctx, attachmentKey(projectID, bugID, filename), data, "application/octet-stream")
}

func (s *S3Storage) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, apperrors.NewStorageNotFoundError(key)
		}
		return nil, apperrors.NewStorageConnectionError(err)
	}
	return out.Body, nil
}

func (s *S3Storage) HeadObject(ctx context.Context, key string) (*ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, apperrors.NewStorageConnectionError(err)
	}
	info := &ObjectInfo{}
	if out.ContentLength != nil {
		info.Size = *out.ContentLength
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return info, nil
}

func (s *S3Storage) DeleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return apperrors.NewStorageConnectionError(err)
	}
	return nil
}

// DeleteFolder lists every object under prefix and deletes them in
// batches of up to 1000 (the S3 DeleteObjects limit).
func (s *S3Storage) DeleteFolder(ctx context.Context, prefix string) (int, error) {
	deleted := 0
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return deleted, apperrors.NewStorageConnectionError(err)
		}
		if len(page.Contents) == 0 {
			continue
		}
		ids := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		}
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids},
		})
		if err != nil {
			return deleted, apperrors.NewStorageConnectionError(err)
		}
		deleted += len(out.Deleted)
	}
	return deleted, nil
}

func (s *S3Storage) ListObjects(ctx context.Context, opts ListOptions) (*ListResult, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket), Prefix: aws.String(opts.Prefix)}
	if opts.MaxKeys > 0 {
		input.MaxKeys = aws.Int32(int32(opts.MaxKeys))
	}
	if opts.ContinuationToken != "" {
		input.ContinuationToken = aws.String(opts.ContinuationToken)
	}

	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, apperrors.NewStorageConnectionError(err)
	}

	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		keys = append(keys, aws.ToString(obj.Key))
	}
	result := &ListResult{Keys: keys, IsTruncated: aws.ToBool(out.IsTruncated)}
	if out.NextContinuationToken != nil {
		result.NextContinuationToken = *out.NextContinuationToken
	}
	return result, nil
}

func (s *S3Storage) GetSignedURL(ctx context.Context, key string, opts SignedURLOptions) (string, error) {
	presignClient := s3.NewPresignClient(s.client)
	input := &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}
	if opts.ResponseContentType != "" {
		input.ResponseContentType = aws.String(opts.ResponseContentType)
	}
	if opts.ResponseContentDisposition != "" {
		input.ResponseContentDisposition = aws.String(opts.ResponseContentDisposition)
	}

	expires := opts.ExpiresIn
	if expires <= 0 {
		expires = 15 * time.Minute
	}

	req, err := presignClient.PresignGetObject(ctx, input, s3.WithPresignExpires(expires))
	if err != nil {
		return "", apperrors.NewStorageConnectionError(err)
	}
	return req.URL, nil
}

// UploadStream uses the S3 transfer manager, which transparently
// switches to a multipart upload once the body exceeds
// multipartThreshold, at multipartPartSize per part.
func (s *S3Storage) UploadStream(ctx context.Context, key string, r io.Reader, progress ProgressFunc) (*UploadResult, error) {
	body := r
	if progress != nil {
		body = &progressReader{r: r, onProgress: progress}
	}
	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return nil, apperrors.NewStorageUploadError(err)
	}
	return &UploadResult{Key: key, URL: out.Location}, nil
}

type progressReader struct {
	r          io.Reader
	written    int64
	onProgress ProgressFunc
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.written += int64(n)
		p.onProgress(p.written)
	}
	return n, err
}
