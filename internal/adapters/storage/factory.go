package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/longregen/reprompt/internal/domain"
	"github.com/longregen/reprompt/internal/ports"
)

// DiscardSink keeps nothing; artifacts stay addressable by URL or ID only.
type DiscardSink struct{}

func (DiscardSink) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	return "", nil
}

// Factory opens sinks from output locations:
//
//	""                  DiscardSink
//	s3://bucket/prefix  S3Sink
//	file:///dir, dir    LocalSink
type Factory struct {
	s3cfg S3Config

	mu       sync.Mutex
	s3client PutObjectAPI
	newS3    func(ctx context.Context, cfg S3Config) (PutObjectAPI, error)
}

// NewFactory creates a factory. s3cfg supplies region, endpoint and
// addressing for s3:// locations; bucket and prefix come from the location.
func NewFactory(s3cfg S3Config) *Factory {
	return &Factory{
		s3cfg: s3cfg,
		newS3: func(ctx context.Context, cfg S3Config) (PutObjectAPI, error) {
			return NewS3Client(ctx, cfg)
		},
	}
}

// WithS3Client uses client for every s3:// location.
func (f *Factory) WithS3Client(client PutObjectAPI) *Factory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s3client = client
	return f
}

func (f *Factory) Open(ctx context.Context, location string) (ports.ArtifactSink, error) {
	location = strings.TrimSpace(location)
	scheme, rest, hasScheme := strings.Cut(location, "://")

	switch {
	case location == "":
		return DiscardSink{}, nil
	case !hasScheme:
		return NewLocalSink(location), nil
	case scheme == "file":
		if rest == "" {
			return nil, fmt.Errorf("%w: empty file location", domain.ErrUnsupportedLocation)
		}
		return NewLocalSink(rest), nil
	case scheme == "s3":
		cfg := f.s3cfg
		cfg.Bucket, cfg.Prefix = ParseS3Path(rest)
		client, err := f.s3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewS3Sink(client, cfg)
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedLocation, location)
}

func (f *Factory) s3Client(ctx context.Context, cfg S3Config) (PutObjectAPI, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.s3client != nil {
		return f.s3client, nil
	}
	client, err := f.newS3(ctx, cfg)
	if err != nil {
		return nil, err
	}
	f.s3client = client
	return client, nil
}
