package upload

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := New(Options{
		Endpoint:  "localhost:9000",
		AccessKey: "access",
		SecretKey: "secret-secret",
		Bucket:    "images",
		Region:    "us-east-1",
		TTL:       10 * time.Minute,
	})
	require.NoError(t, err)
	return svc
}

func TestStartPresignsPut(t *testing.T) {
	svc := newTestService(t)

	ticket, err := svc.Start(context.Background(), 42, "Tacos al pastor.JPG", "image/jpeg")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(ticket.Key, "recipes/42/"))
	assert.True(t, strings.HasSuffix(ticket.Key, "/Tacos_al_pastor.JPG"))
	assert.Equal(t, "image/jpeg", ticket.Headers["Content-Type"])
	assert.NotEmpty(t, ticket.ID)

	u, err := url.Parse(ticket.UploadURL)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/images/"+ticket.Key, u.Path)
	assert.Equal(t, "600", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestStartKeysAreUnique(t *testing.T) {
	svc := newTestService(t)

	a, err := svc.Start(context.Background(), 1, "a.png", "image/png")
	require.NoError(t, err)
	b, err := svc.Start(context.Background(), 1, "a.png", "image/png")
	require.NoError(t, err)
	assert.NotEqual(t, a.Key, b.Key)
}

func TestStartRejectsBadInput(t *testing.T) {
	svc := newTestService(t)

	cases := []struct {
		name        string
		fileName    string
		contentType string
	}{
		{"empty name", "  ", "image/png"},
		{"only symbols", "???", "image/png"},
		{"not an image", "notes.txt", "text/plain"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Start(context.Background(), 1, tc.fileName, tc.contentType)
			assert.True(t, errors.Is(err, ErrInvalidUpload), "got %v", err)
		})
	}
}

func TestCleanFileName(t *testing.T) {
	cases := map[string]string{
		"photo.jpg":             "photo.jpg",
		"../../etc/passwd":      "passwd",
		`C:\Users\me\pie.png`:   "pie.png",
		"my pie (final).png":    "my_pie_final.png",
		"crème brûlée.jpeg":     "crme_brle.jpeg",
	}
	for in, want := range cases {
		assert.Equal(t, want, cleanFileName(in), in)
	}
}
