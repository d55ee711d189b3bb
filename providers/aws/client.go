package aws

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"video-narrator/core/models"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// StorageConfig selects the bucket and URL policy for published outputs
type StorageConfig struct {
	Bucket        string
	Region        string
	Prefix        string
	PublicBaseURL string
	URLExpiry     time.Duration
}

type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Storage is the S3-backed durable store for finished videos
type Storage struct {
	cfg       StorageConfig
	objects   objectAPI
	presigner presignAPI
	logger    *zap.Logger
}

// NewStorage creates an S3 storage client from the default credential chain
func NewStorage(ctx context.Context, cfg StorageConfig, logger *zap.Logger) (*Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 storage: bucket required")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return newStorage(cfg, client, s3.NewPresignClient(client), logger), nil
}

func newStorage(cfg StorageConfig, objects objectAPI, presigner presignAPI, logger *zap.Logger) *Storage {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = time.Hour
	}
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	return &Storage{
		cfg:       cfg,
		objects:   objects,
		presigner: presigner,
		logger:    logger.With(zap.String("component", "s3")),
	}
}

// Publish uploads the finished video for jobID and returns the locations to
// record on the job: the object reference plus public, streaming and download URLs.
func (s *Storage) Publish(ctx context.Context, localPath, jobID string) ([]models.Artifact, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat upload: %w", err)
	}

	key := s.objectKey(jobID)
	started := time.Now()
	_, err = s.objects.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        awssdk.String(s.cfg.Bucket),
		Key:           awssdk.String(key),
		Body:          f,
		ContentLength: awssdk.Int64(info.Size()),
		ContentType:   awssdk.String("video/mp4"),
		Metadata:      map[string]string{"job-id": jobID},
	})
	if err != nil {
		return nil, fmt.Errorf("put s3://%s/%s: %w", s.cfg.Bucket, key, err)
	}
	s.logger.Info("uploaded output",
		zap.String("job_id", jobID),
		zap.String("key", key),
		zap.String("size", humanize.Bytes(uint64(info.Size()))),
		zap.Duration("elapsed", time.Since(started)),
	)

	ref := s.reference(key)
	streaming, err := s.StreamingURL(ctx, ref)
	if err != nil {
		return nil, err
	}
	download, err := s.DownloadURL(ctx, ref, jobID+".mp4")
	if err != nil {
		return nil, err
	}
	return []models.Artifact{
		{Type: models.ArtifactTypeObject, URI: ref},
		{Type: models.ArtifactTypePublic, URI: s.publicURL(key)},
		{Type: models.ArtifactTypeStreaming, URI: streaming},
		{Type: models.ArtifactTypeDownload, URI: download},
	}, nil
}

// StreamingURL presigns an inline GET for an object reference.
func (s *Storage) StreamingURL(ctx context.Context, ref string) (string, error) {
	bucket, key, err := parseReference(ref)
	if err != nil {
		return "", err
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:              awssdk.String(bucket),
		Key:                 awssdk.String(key),
		ResponseContentType: awssdk.String("video/mp4"),
	}, s3.WithPresignExpires(s.cfg.URLExpiry))
	if err != nil {
		return "", fmt.Errorf("presign streaming url: %w", err)
	}
	return req.URL, nil
}

// DownloadURL presigns a GET that asks the browser to save the file as filename.
func (s *Storage) DownloadURL(ctx context.Context, ref, filename string) (string, error) {
	bucket, key, err := parseReference(ref)
	if err != nil {
		return "", err
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     awssdk.String(bucket),
		Key:                        awssdk.String(key),
		ResponseContentDisposition: awssdk.String(fmt.Sprintf("attachment; filename=%q", filename)),
	}, s3.WithPresignExpires(s.cfg.URLExpiry))
	if err != nil {
		return "", fmt.Errorf("presign download url: %w", err)
	}
	return req.URL, nil
}

func (s *Storage) objectKey(jobID string) string {
	name := "output_" + jobID + ".mp4"
	if s.cfg.Prefix == "" {
		return name
	}
	return path.Join(s.cfg.Prefix, name)
}

func (s *Storage) reference(key string) string {
	return "s3://" + s.cfg.Bucket + "/" + key
}

func (s *Storage) publicURL(key string) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}

func parseReference(ref string) (string, string, error) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid object reference %q", ref)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("invalid object reference %q", ref)
	}
	return u.Host, key, nil
}
