package handoff

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const s3Prefix = "handoffs/"

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store archives each handoff as handoffs/<call_id>.json.
type S3Store struct {
	client S3API
	bucket string
}

// NewS3Store stores handoffs as JSON objects in bucket.
func NewS3Store(client S3API, bucket string) *S3Store {
	if client == nil {
		panic("handoff: s3 client required")
	}
	if strings.TrimSpace(bucket) == "" {
		panic("handoff: s3 bucket required")
	}
	return &S3Store{client: client, bucket: bucket}
}

func s3Key(callID string) string {
	return s3Prefix + callID + ".json"
}

func (s *S3Store) Save(ctx context.Context, h Handoff) error {
	if strings.TrimSpace(h.CallID) == "" {
		return fmt.Errorf("handoff: call_id required")
	}
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("handoff: marshal: %w", err)
	}
	key := s3Key(h.CallID)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("handoff: s3 put %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, callID string) (*Handoff, error) {
	return s.getKey(ctx, s3Key(callID))
}

func (s *S3Store) getKey(ctx context.Context, key string) (*Handoff, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("handoff: s3 get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("handoff: s3 read %s: %w", key, err)
	}
	var h Handoff
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("handoff: unmarshal %s: %w", key, err)
	}
	return &h, nil
}

// List reads every object under the handoffs/ prefix and returns the newest
// first. It is meant for the admin surface, not for hot paths.
func (s *S3Store) List(ctx context.Context, limit int) ([]Handoff, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s3Prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("handoff: s3 list: %w", err)
		}
		for _, obj := range page.Contents {
			if key := aws.ToString(obj.Key); strings.HasSuffix(key, ".json") {
				keys = append(keys, key)
			}
		}
	}

	out := make([]Handoff, 0, len(keys))
	for _, key := range keys {
		h, err := s.getKey(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit = normalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func isNoSuchKey(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *s3types.NotFound
	return errors.As(err, &nf)
}
