package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/matzehuels/ogloc/pkg/buildinfo"
	"github.com/matzehuels/ogloc/pkg/integrations"
)

// AvatarLoader fetches and decodes an avatar image. Failures are never
// fatal to a render; the owner gets a monogram instead.
type AvatarLoader interface {
	Load(ctx context.Context, url string) (image.Image, error)
}

const (
	maxAvatarBytes  = 1 << 20
	maxAvatarPixels = 1024 * 1024
)

// HTTPAvatarLoader downloads avatars and keeps recently used ones decoded.
type HTTPAvatarLoader struct {
	client *integrations.Client
	cache  *lru.Cache[string, image.Image]
}

// NewHTTPAvatarLoader creates a loader that remembers up to size images.
func NewHTTPAvatarLoader(size int) (*HTTPAvatarLoader, error) {
	cache, err := lru.New[string, image.Image](max(size, 1))
	if err != nil {
		return nil, err
	}
	client := integrations.NewClient(map[string]string{"User-Agent": buildinfo.UserAgent()})
	return &HTTPAvatarLoader{client: client, cache: cache}, nil
}

// Client exposes the underlying HTTP client for configuration.
func (l *HTTPAvatarLoader) Client() *integrations.Client { return l.client }

// Load implements AvatarLoader.
func (l *HTTPAvatarLoader) Load(ctx context.Context, url string) (image.Image, error) {
	if img, ok := l.cache.Get(url); ok {
		return img, nil
	}
	data, err := l.client.GetBytes(ctx, url, maxAvatarBytes)
	if err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode avatar: %w", err)
	}
	if cfg.Width*cfg.Height > maxAvatarPixels {
		return nil, fmt.Errorf("avatar too large: %dx%d", cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode avatar: %w", err)
	}
	l.cache.Add(url, img)
	return img, nil
}
