package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/zmart/internal/domain"
)

// EvidenceStore implements domain.EvidenceStore on an S3-compatible backend.
// Documents are stored under evidence/{hash}; the hash is the only reference
// markets carry, so an object is immutable once written.
type EvidenceStore struct {
	client *s3.Client
	bucket string
}

// NewEvidenceStore creates an EvidenceStore that stores documents in the
// given client's configured bucket.
func NewEvidenceStore(c *Client) *EvidenceStore {
	return &EvidenceStore{
		client: c.S3(),
		bucket: c.Bucket(),
	}
}

func evidenceKey(hash string) string {
	return "evidence/" + hash
}

// Put uploads an evidence document under its content hash. Re-uploading the
// same hash overwrites with identical content, so Put is idempotent.
func (e *EvidenceStore) Put(ctx context.Context, hash string, data io.Reader, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(evidenceKey(hash)),
		Body:        data,
		ContentType: aws.String(contentType),
	}
	if _, err := e.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3blob: put evidence %s: %w", hash, err)
	}
	return nil
}

// Get retrieves the evidence document for a hash. The caller is responsible
// for closing the returned reader. Returns domain.ErrNotFound when no
// document exists for the hash.
func (e *EvidenceStore) Get(ctx context.Context, hash string) (io.ReadCloser, error) {
	output, err := e.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(evidenceKey(hash)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3blob: get evidence %s: %w", hash, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("s3blob: get evidence %s: %w", hash, err)
	}
	return output.Body, nil
}

// Exists checks whether a document is stored for the hash via HeadObject.
func (e *EvidenceStore) Exists(ctx context.Context, hash string) (bool, error) {
	_, err := e.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(evidenceKey(hash)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3blob: evidence exists %s: %w", hash, err)
	}
	return true, nil
}

// List returns metadata for stored evidence documents whose hash starts with
// the given prefix. Pagination is handled transparently.
func (e *EvidenceStore) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo

	paginator := s3.NewListObjectsV2Paginator(e.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(e.bucket),
		Prefix: aws.String(evidenceKey(prefix)),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list evidence %s: %w", prefix, err)
		}

		for _, obj := range page.Contents {
			info := domain.BlobInfo{
				Path: aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			infos = append(infos, info)
		}
	}

	return infos, nil
}

// isNotFound returns true when the error indicates the requested S3 object
// does not exist. It checks for both the SDK typed error (NoSuchKey) and
// the generic 404 response.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	// HeadObject does not return NoSuchKey; it returns a generic 404.
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}

	// Fallback: some S3-compatible providers return a ResponseError with
	// HTTP 404. We check via the smithy HTTP response interface.
	type httpResponseError interface {
		HTTPStatusCode() int
	}
	var httpErr httpResponseError
	if errors.As(err, &httpErr) && httpErr.HTTPStatusCode() == 404 {
		return true
	}

	return false
}

// Compile-time interface check.
var _ domain.EvidenceStore = (*EvidenceStore)(nil)
