package bundle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client the archive uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type S3Config struct {
	Bucket         string
	Prefix         string
	Region         string
	Endpoint       string
	ForcePathStyle bool
}

// NewS3Client builds an S3 client from the default credential chain.
// Endpoint and ForcePathStyle allow S3-compatible stores.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	}), nil
}

// keyTimeLayout is fixed width so keys sort chronologically.
const keyTimeLayout = "20060102T150405.000000000Z"

// S3Repository writes each snapshot as one JSON object under
// <prefix>/<bundleType>/<createdAt>_<id>.json.
type S3Repository struct {
	client S3API
	bucket string
	prefix string
}

func NewS3Repository(client S3API, bucket, prefix string) *S3Repository {
	return &S3Repository{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (r *S3Repository) key(s *Snapshot) string {
	name := s.CreatedAt.UTC().Format(keyTimeLayout) + "_" + s.ID + ".json"
	return path.Join(r.prefix, s.BundleType, name)
}

func (r *S3Repository) Create(ctx context.Context, s *Snapshot) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(r.key(s)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"bundle-type":    s.BundleType,
			"resource-count": strconv.Itoa(s.ResourceCount),
		},
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", r.key(s), err)
	}
	return nil
}

func (r *S3Repository) List(ctx context.Context, bundleType string, limit, offset int) ([]*Snapshot, int, error) {
	prefix := r.prefix
	if bundleType != "" {
		prefix = path.Join(prefix, bundleType)
	}
	if prefix != "" {
		prefix += "/"
	}

	var keys []string
	p := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if k := aws.ToString(obj.Key); strings.HasSuffix(k, ".json") {
				keys = append(keys, k)
			}
		}
	}

	// Newest first across bundle types: the base name leads with the time.
	sort.Slice(keys, func(i, j int) bool {
		return path.Base(keys[i]) > path.Base(keys[j])
	})

	total := len(keys)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}

	out := make([]*Snapshot, 0, end-offset)
	for _, k := range keys[offset:end] {
		s, err := r.get(ctx, k)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, nil
}

func (r *S3Repository) get(ctx context.Context, key string) (*Snapshot, error) {
	obj, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer obj.Body.Close()

	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &s, nil
}
