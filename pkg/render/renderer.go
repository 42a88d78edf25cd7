package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"runtime"
	"runtime/debug"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"

	"github.com/matzehuels/ogloc/pkg/errors"
)

// Output dimensions in pixels.
const (
	Width  = 1200
	Height = 630
)

// Options configures a Renderer.
type Options struct {
	// Workers bounds concurrent rasterisation. 0 means runtime.NumCPU().
	Workers int
	// Avatars fetches owner avatars. Nil draws monograms for everyone.
	Avatars AvatarLoader
	// Logger receives avatar fallbacks at debug level. Nil disables logging.
	Logger *log.Logger
}

// Renderer compiles documents to PNG. Safe for concurrent use.
type Renderer struct {
	sem     *semaphore.Weighted
	workers int
	avatars AvatarLoader
	logger  *log.Logger
}

// New creates a Renderer.
func New(opts Options) *Renderer {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Renderer{
		sem:     semaphore.NewWeighted(int64(opts.Workers)),
		workers: opts.Workers,
		avatars: opts.Avatars,
		logger:  opts.Logger,
	}
}

// Workers returns the size of the rasterisation pool.
func (r *Renderer) Workers() int { return r.workers }

// Compile decodes doc and rasterises it to a 1200x630 PNG.
func (r *Renderer) Compile(ctx context.Context, doc []byte) ([]byte, error) {
	d, err := Decode(doc)
	if err != nil {
		return nil, err
	}

	// Avatar I/O happens before taking a CPU slot.
	avatars := r.loadAvatars(ctx, d)

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)

	return rasterize(d, avatars)
}

func (r *Renderer) loadAvatars(ctx context.Context, d *Document) map[string]image.Image {
	if r.avatars == nil {
		return nil
	}
	out := make(map[string]image.Image)
	for _, el := range d.Elements {
		if el.Kind != KindAvatars {
			continue
		}
		for _, o := range el.Owners {
			if o.Avatar == "" {
				continue
			}
			if _, done := out[o.Avatar]; done {
				continue
			}
			img, err := r.avatars.Load(ctx, o.Avatar)
			if err != nil {
				if r.logger != nil {
					r.logger.Debug("avatar unavailable, drawing monogram", "owner", o.Name, "error", err)
				}
				img = nil
			}
			out[o.Avatar] = img
		}
	}
	return out
}

// rasterize paints d. Engine panics become RENDER_INTERNAL errors.
func rasterize(d *Document, avatars map[string]image.Image) (png []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			png = nil
			err = errors.Wrap(errors.ErrCodeRenderInternal, fmt.Errorf("panic: %v\n%s", p, debug.Stack()), "rasterize")
		}
	}()

	c := newCanvas(Width, Height)
	defer c.close()

	if err := c.paint(d, avatars); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := c.encode(&buf); err != nil {
		return nil, errors.Wrap(errors.ErrCodeRenderInternal, err, "encode png")
	}
	return buf.Bytes(), nil
}
