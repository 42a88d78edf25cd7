// Package pipeline turns a crate name into an Open Graph image.
//
// One [Pipeline] is shared by every surface: the one-shot command, the bulk
// command and the HTTP server.
//
// # Stages
//
//  1. Resolve: look up the record for (name, selector) in the dump, falling
//     back to the remote registry when configured
//  2. Bind: execute the card template with the record
//  3. Compile: rasterise the bound document to a 1200x630 PNG
//
// Resolution happens outside the cache so that "latest" is folded into the
// cache key as the concrete version. [Pipeline.Resolve] exposes that step on
// its own so a caller can check the key (e.g. against an HTTP ETag) before
// paying for a render. Bind and compile run inside
// [cache.Cache.GetOrCompute], so concurrent requests for the same image share
// a single render.
//
// # Usage
//
//	p := pipeline.New(resolver, binder, renderer, c, logger)
//	res, err := p.Render(ctx, "serde", crate.Latest)
//	if err != nil {
//	    return err
//	}
//	os.WriteFile("serde.png", res.PNG, 0o644)
//
// For many names at once use [Batch].
package pipeline

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/ogloc/pkg/cache"
	"github.com/matzehuels/ogloc/pkg/crate"
	"github.com/matzehuels/ogloc/pkg/errors"
	"github.com/matzehuels/ogloc/pkg/observability"
	"github.com/matzehuels/ogloc/pkg/resolve"
	"github.com/matzehuels/ogloc/pkg/template"
)

// Resolver looks up the metadata record for a crate.
type Resolver interface {
	Resolve(ctx context.Context, name string, sel crate.Selector) (*resolve.Record, error)
}

// Binder turns a record into a renderable document.
type Binder interface {
	Revision() string
	Bind(rec *resolve.Record) (template.Document, error)
}

// Compiler rasterises a document into PNG bytes.
type Compiler interface {
	Compile(ctx context.Context, doc []byte) ([]byte, error)
}

// Result is one rendered image.
type Result struct {
	Key    cache.Key
	PNG    []byte
	Record *resolve.Record
	// Cached is true when the bytes came from the cache or from a render
	// another caller started.
	Cached   bool
	Duration time.Duration
}

// Job is a resolved request: the record to draw and the cache key its image
// is stored under. The key is known before anything is rendered.
type Job struct {
	Key    cache.Key
	Record *resolve.Record
}

// Pipeline runs resolve, bind and compile with caching. Safe for
// concurrent use.
type Pipeline struct {
	resolver Resolver
	binder   Binder
	compiler Compiler
	cache    *cache.Cache
	logger   *log.Logger
}

// New creates a pipeline. A nil logger uses log.Default().
func New(resolver Resolver, binder Binder, compiler Compiler, c *cache.Cache, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{
		resolver: resolver,
		binder:   binder,
		compiler: compiler,
		cache:    c,
		logger:   logger,
	}
}

// Render produces the image for (name, sel). It is [Pipeline.Resolve]
// followed by [Pipeline.Run].
//
// Errors keep the code assigned where they happened; anything uncoded is
// reported as INTERNAL_ERROR. Context errors are returned unchanged.
func (p *Pipeline) Render(ctx context.Context, name string, sel crate.Selector) (*Result, error) {
	start := time.Now()
	job, err := p.Resolve(ctx, name, sel)
	if err != nil {
		return nil, err
	}
	res, err := p.Run(ctx, job)
	if err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)
	return res, nil
}

// Resolve looks up the record for (name, sel) and derives its cache key.
func (p *Pipeline) Resolve(ctx context.Context, name string, sel crate.Selector) (*Job, error) {
	rec, err := p.resolver.Resolve(ctx, name, sel)
	if err != nil {
		return nil, failure(err, "resolve %s@%s", name, sel)
	}
	return &Job{
		Key:    cache.Key{Name: rec.Name, Version: rec.Version, Revision: p.binder.Revision()},
		Record: rec,
	}, nil
}

// Run returns the image for job, from the cache or by binding and compiling
// its record.
func (p *Pipeline) Run(ctx context.Context, job *Job) (*Result, error) {
	start := time.Now()
	key, rec := job.Key, job.Record
	png, outcome, err := p.cache.Do(ctx, key, func(ctx context.Context) ([]byte, error) {
		return p.compute(ctx, rec)
	})
	if err != nil {
		return nil, failure(err, "render %s", key)
	}

	res := &Result{
		Key:      key,
		PNG:      png,
		Record:   rec,
		Cached:   outcome != cache.Computed,
		Duration: time.Since(start),
	}
	p.logger.Debug("rendered image",
		"crate", key.Name,
		"version", key.Version,
		"source", rec.Source,
		"cache", outcome,
		"bytes", len(png),
		"duration", res.Duration)
	return res, nil
}

// compute binds and compiles one record. It runs once per cache key.
func (p *Pipeline) compute(ctx context.Context, rec *resolve.Record) ([]byte, error) {
	start := time.Now()
	png, err := p.bindAndCompile(ctx, rec)
	observability.Pipeline().OnRender(ctx, time.Since(start), err)
	return png, err
}

func (p *Pipeline) bindAndCompile(ctx context.Context, rec *resolve.Record) ([]byte, error) {
	doc, err := p.binder.Bind(rec)
	if err != nil {
		return nil, err
	}
	return p.compiler.Compile(ctx, doc.Source)
}

// Stats returns the render cache counters.
func (p *Pipeline) Stats() cache.Stats {
	return p.cache.Stats()
}

func failure(err error, format string, args ...any) error {
	if errors.IsContext(err) {
		return err
	}
	return errors.Ensure(err, errors.ErrCodeInternal, format, args...)
}
