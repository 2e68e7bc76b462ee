// Package s3 provides an S3-compatible object storage gateway for node
// documents and files.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dukex/nodegraph/pkg/models"
	"github.com/dukex/nodegraph/pkg/persistence"
)

// API is the subset of the S3 client used by the gateway.
type API interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, params *awss3.HeadBucketInput, optFns ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error)
}

// Options configures the S3 client.
type Options struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // for MinIO and other S3-compatible stores
	AccessKeyID     string
	SecretAccessKey string
}

// Persistence stores documents at {prefix}/nodes/{id}/data.json and files
// at {prefix}/nodes/{id}/files/{name}.
type Persistence struct {
	client API
	bucket string
	prefix string
	logger *slog.Logger
}

// NewPersistence builds an S3 client from the default AWS configuration
// chain, overridden by opts.
func NewPersistence(ctx context.Context, logger *slog.Logger, opts Options) (*Persistence, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}

	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewWithClient(logger, client, opts.Bucket, opts.Prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(logger *slog.Logger, client API, bucket, prefix string) *Persistence {
	return &Persistence{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	_, err := p.client.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(p.bucket)})
	if err != nil {
		return fmt.Errorf("%w: %w", persistence.ErrUnreachable, err)
	}

	return nil
}

func (p *Persistence) nodePrefix(nodeID string) string {
	return path.Join(p.prefix, "nodes", nodeID) + "/"
}

func (p *Persistence) dataKey(nodeID string) string {
	return p.nodePrefix(nodeID) + "data.json"
}

func (p *Persistence) fileKey(nodeID, base string) string {
	return p.nodePrefix(nodeID) + "files/" + base
}

func (p *Persistence) SaveNodeData(ctx context.Context, nodeID string, doc *models.NodeDocument) error {
	if err := persistence.ValidateNodeID(nodeID); err != nil {
		return persistence.NewNodeError("save", nodeID, err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return persistence.NewNodeError("save", nodeID, fmt.Errorf("failed to marshal document: %w", err))
	}

	if err := p.put(ctx, p.dataKey(nodeID), data, "application/json"); err != nil {
		return persistence.NewNodeError("save", nodeID, err)
	}

	return nil
}

func (p *Persistence) LoadNodeData(ctx context.Context, nodeID string) (*models.NodeDocument, error) {
	if err := persistence.ValidateNodeID(nodeID); err != nil {
		return nil, persistence.NewNodeError("load", nodeID, err)
	}

	data, err := p.get(ctx, p.dataKey(nodeID))
	if err != nil {
		return nil, persistence.NewNodeError("load", nodeID, err)
	}

	if data == nil {
		return nil, nil
	}

	var doc models.NodeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, persistence.NewNodeError("load", nodeID, fmt.Errorf("failed to unmarshal document: %w", err))
	}

	return &doc, nil
}

// DeleteNodeData removes every object under the node prefix.
func (p *Persistence) DeleteNodeData(ctx context.Context, nodeID string) error {
	if err := persistence.ValidateNodeID(nodeID); err != nil {
		return persistence.NewNodeError("delete", nodeID, err)
	}

	paginator := awss3.NewListObjectsV2Paginator(p.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(p.nodePrefix(nodeID)),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return persistence.NewNodeError("delete", nodeID, fmt.Errorf("failed to list objects: %w", err))
		}

		for _, obj := range page.Contents {
			_, err := p.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
				Bucket: aws.String(p.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				return persistence.NewNodeError("delete", nodeID, fmt.Errorf("failed to delete %s: %w", aws.ToString(obj.Key), err))
			}
		}
	}

	return nil
}

func (p *Persistence) SaveNodeFile(ctx context.Context, nodeID, fileName string, data []byte) (string, error) {
	base, err := validateFile("save", nodeID, fileName)
	if err != nil {
		return "", err
	}

	contentType := mime.TypeByExtension(path.Ext(base))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := p.put(ctx, p.fileKey(nodeID, base), data, contentType); err != nil {
		return "", persistence.NewFileError("save", nodeID, base, err)
	}

	return base, nil
}

func (p *Persistence) LoadNodeFile(ctx context.Context, nodeID, fileName string) ([]byte, error) {
	base, err := validateFile("load", nodeID, fileName)
	if err != nil {
		return nil, err
	}

	data, err := p.get(ctx, p.fileKey(nodeID, base))
	if err != nil {
		return nil, persistence.NewFileError("load", nodeID, base, err)
	}

	return data, nil
}

func (p *Persistence) DeleteNodeFile(ctx context.Context, nodeID, fileName string) error {
	base, err := validateFile("delete", nodeID, fileName)
	if err != nil {
		return err
	}

	_, err = p.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.fileKey(nodeID, base)),
	})
	if err != nil {
		return persistence.NewFileError("delete", nodeID, base, err)
	}

	return nil
}

func (p *Persistence) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := p.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}

	return nil
}

// get returns nil data when the key does not exist.
func (p *Persistence) get(ctx context.Context, key string) ([]byte, error) {
	out, err := p.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}

	defer func() {
		if closeErr := out.Body.Close(); closeErr != nil {
			p.logger.ErrorContext(ctx, "failed to close object body", "key", key, "error", closeErr)
		}
	}()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	return data, nil
}

func validateFile(op, nodeID, fileName string) (string, error) {
	if err := persistence.ValidateNodeID(nodeID); err != nil {
		return "", persistence.NewFileError(op, nodeID, fileName, err)
	}

	base, err := persistence.NormalizeFileName(fileName)
	if err != nil {
		return "", persistence.NewFileError(op, nodeID, fileName, err)
	}

	return base, nil
}
