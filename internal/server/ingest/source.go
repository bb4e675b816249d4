package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/annachatkara/moviedb/internal/common"
)

// Source opens a remote resource for streaming reads.
type Source interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// FetchError reports a remote resource that could not be opened.
type FetchError struct {
	URL string
	// StatusCode is the HTTP status, 0 when the failure was not an HTTP
	// response.
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("failed to fetch %s: status %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// HTTPSource fetches http and https URLs with a GET request.
type HTTPSource struct {
	Client *http.Client
}

func (s HTTPSource) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, &FetchError{URL: location, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: location, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &FetchError{URL: location, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

// ObjectGetter is the part of the S3 API S3Source uses.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads s3://bucket/key locations.
type S3Source struct {
	Client ObjectGetter
}

// S3Options holds the connection settings for NewS3Source. Empty fields
// fall back to the SDK's default credential and region chain.
type S3Options struct {
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
}

// NewS3Source builds an S3 client from opts. A custom endpoint (MinIO and
// similar) switches to path-style addressing.
func NewS3Source(ctx context.Context, opts S3Options) (*S3Source, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Source{Client: client}, nil
}

func (s *S3Source) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	bucket, key, err := splitS3Location(location)
	if err != nil {
		return nil, &FetchError{URL: location, Err: err}
	}
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &FetchError{URL: location, Err: err}
	}
	return out.Body, nil
}

func splitS3Location(location string) (string, string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", err
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Scheme != "s3" || u.Host == "" || key == "" {
		return "", "", fmt.Errorf("%w: want s3://bucket/key", common.ErrInvalidArgument)
	}
	return u.Host, key, nil
}

// MultiSource dispatches on the location's URL scheme.
type MultiSource map[string]Source

func (m MultiSource) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, &FetchError{URL: location, Err: err}
	}
	src, ok := m[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, &FetchError{URL: location, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
	return src.Open(ctx, location)
}
