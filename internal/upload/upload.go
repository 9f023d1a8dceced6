// Package upload hands out presigned URLs so clients can PUT recipe images
// straight to S3-compatible storage.
package upload

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrInvalidUpload = errors.New("upload: invalid upload request")

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	// Region must be set for presigning to work without a network round trip.
	Region string
	UseSSL bool
	TTL    time.Duration
}

type Service struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
}

// Ticket is what a client needs to upload one file.
type Ticket struct {
	ID        string            `json:"id"`
	Key       string            `json:"key"`
	UploadURL string            `json:"uploadUrl"`
	Headers   map[string]string `json:"uploadHeaders"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

func New(opts Options) (*Service, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Service{client: client, bucket: opts.Bucket, ttl: ttl}, nil
}

func (s *Service) Bucket() string {
	return s.bucket
}

// Start presigns a PUT for an image attached to recipeID.
func (s *Service) Start(ctx context.Context, recipeID int64, fileName, contentType string) (Ticket, error) {
	name := cleanFileName(fileName)
	if name == "" {
		return Ticket{}, fmt.Errorf("%w: file name is required", ErrInvalidUpload)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return Ticket{}, fmt.Errorf("%w: content type %q is not an image", ErrInvalidUpload, contentType)
	}

	id := uuid.New()
	key := fmt.Sprintf("recipes/%d/%s/%s", recipeID, strings.ReplaceAll(id.String(), "-", ""), name)

	u, err := s.client.PresignedPutObject(ctx, s.bucket, key, s.ttl)
	if err != nil {
		return Ticket{}, fmt.Errorf("presign upload: %w", err)
	}
	return Ticket{
		ID:        id.String(),
		Key:       key,
		UploadURL: u.String(),
		Headers:   map[string]string{"Content-Type": contentType},
		ExpiresAt: time.Now().Add(s.ttl).UTC(),
	}, nil
}

// cleanFileName keeps the base name and drops characters that need escaping
// in object keys.
func cleanFileName(fileName string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), `\`, "/"))
	if base == "." || base == "/" {
		return ""
	}
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	return b.String()
}
