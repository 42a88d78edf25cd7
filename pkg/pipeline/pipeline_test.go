package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/ogloc/pkg/cache"
	"github.com/matzehuels/ogloc/pkg/crate"
	"github.com/matzehuels/ogloc/pkg/dump"
	"github.com/matzehuels/ogloc/pkg/dump/dumptest"
	"github.com/matzehuels/ogloc/pkg/errors"
	"github.com/matzehuels/ogloc/pkg/render"
	"github.com/matzehuels/ogloc/pkg/resolve"
	"github.com/matzehuels/ogloc/pkg/template"
)

func loadStore(t *testing.T, sections dumptest.Sections) *dump.Store {
	t.Helper()
	store, err := dump.LoadReader(context.Background(), bytes.NewReader(dumptest.Archive(t, sections)), dump.Options{})
	require.NoError(t, err)
	return store
}

func newCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.New(cache.Options{Size: 16})
	require.NoError(t, err)
	return c
}

// newPipeline wires the real resolver, binder and renderer over sections.
func newPipeline(t *testing.T, sections dumptest.Sections, remote resolve.RemoteSource) *Pipeline {
	t.Helper()
	r := resolve.New(loadStore(t, sections), resolve.Options{Remote: remote})
	return New(r, template.New(), render.New(render.Options{Workers: 2}), newCache(t), nil)
}

func TestRenderEndToEnd(t *testing.T) {
	p := newPipeline(t, dumptest.Minimal(), nil)
	ctx := context.Background()

	res, err := p.Render(ctx, "demo", crate.Latest)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", res.Record.Version)
	assert.Equal(t, resolve.SourceDump, res.Record.Source)
	assert.False(t, res.Cached)
	assert.Equal(t, "demo", res.Key.Name)
	assert.Equal(t, "1.0.0", res.Key.Version)

	img, err := png.Decode(bytes.NewReader(res.PNG))
	require.NoError(t, err)
	assert.Equal(t, render.Width, img.Bounds().Dx())
	assert.Equal(t, render.Height, img.Bounds().Dy())

	// "latest" and the explicit version share one cache entry.
	again, err := p.Render(ctx, "demo", crate.Exact("1.0.0"))
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, res.PNG, again.PNG)
	assert.Equal(t, res.Key, again.Key)
}

func TestRenderUnknownVersion(t *testing.T) {
	p := newPipeline(t, dumptest.Minimal(), nil)

	_, err := p.Render(context.Background(), "demo", crate.Exact("9.9.9"))
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound), "got %v", err)
	assert.Equal(t, 0, p.Stats().Entries)
}

func TestRenderUnknownCrate(t *testing.T) {
	p := newPipeline(t, dumptest.Minimal(), nil)

	_, err := p.Render(context.Background(), "missing", crate.Latest)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound), "got %v", err)
	assert.Equal(t, errors.ExitNotFound, errors.ExitCode(err))
}

func TestRenderRemoteFallback(t *testing.T) {
	stub := resolve.NewStub().Add(resolve.RemoteRecord{
		Name:        "demo",
		Version:     "9.9.9",
		Description: "Published after the dump",
		Downloads:   1000,
		License:     "MIT",
	})
	p := newPipeline(t, dumptest.Minimal(), stub)

	res, err := p.Render(context.Background(), "demo", crate.Exact("9.9.9"))
	require.NoError(t, err)
	assert.Equal(t, resolve.SourceRemote, res.Record.Source)
	assert.Equal(t, "9.9.9", res.Key.Version)
	assert.NotEmpty(t, res.PNG)
}

func TestRenderAllYanked(t *testing.T) {
	p := newPipeline(t, dumptest.Demo(), nil)

	_, err := p.Render(context.Background(), "gone", crate.Latest)
	assert.True(t, errors.Is(err, errors.ErrCodeNoRenderableVersion), "got %v", err)
}

// fakeResolver answers every name with version 1.0.0.
type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, name string, _ crate.Selector) (*resolve.Record, error) {
	return &resolve.Record{Name: name, Version: "1.0.0", Source: resolve.SourceDump}, nil
}

// fakeCompiler counts compiles and optionally blocks or fails.
type fakeCompiler struct {
	calls   atomic.Int64
	release chan struct{}
	err     error
}

func (f *fakeCompiler) Compile(context.Context, []byte) ([]byte, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return []byte("png"), nil
}

func TestRenderConcurrentRequestsShareOneCompile(t *testing.T) {
	const callers = 16
	fc := &fakeCompiler{release: make(chan struct{})}
	p := New(fakeResolver{}, template.New(), fc, newCache(t), nil)

	results := make([]*Result, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := p.Render(context.Background(), "demo", crate.Latest)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	require.Eventually(t, func() bool {
		return p.Stats().Dedups == callers-1
	}, 2*time.Second, time.Millisecond)
	close(fc.release)
	wg.Wait()

	assert.EqualValues(t, 1, fc.calls.Load())
	uncached := 0
	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, []byte("png"), res.PNG)
		if !res.Cached {
			uncached++
		}
	}
	assert.Equal(t, 1, uncached)
}

func TestRenderErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errors.Code
	}{
		{"coded passes through", errors.New(errors.ErrCodeRenderResource, "font missing"), errors.ErrCodeRenderResource},
		{"uncoded becomes internal", fmt.Errorf("disk on fire"), errors.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(fakeResolver{}, template.New(), &fakeCompiler{err: tt.err}, newCache(t), nil)
			_, err := p.Render(context.Background(), "demo", crate.Latest)
			assert.Equal(t, tt.want, errors.GetCode(err), "got %v", err)
		})
	}
}

func TestRenderCanceledKeepsContextError(t *testing.T) {
	fc := &fakeCompiler{release: make(chan struct{})}
	c := newCache(t)
	p := New(fakeResolver{}, template.New(), fc, c, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Render(ctx, "demo", crate.Latest)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, errors.GetCode(err))

	// The abandoned render still completes and is cached.
	close(fc.release)
	res, err := p.Render(context.Background(), "demo", crate.Latest)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.EqualValues(t, 1, fc.calls.Load())
}

func TestResolveDoesNotRender(t *testing.T) {
	fc := &fakeCompiler{}
	b := template.New()
	p := New(fakeResolver{}, b, fc, newCache(t), nil)
	ctx := context.Background()

	job, err := p.Resolve(ctx, "demo", crate.Latest)
	require.NoError(t, err)
	assert.Equal(t, cache.Key{Name: "demo", Version: "1.0.0", Revision: b.Revision()}, job.Key)
	assert.Zero(t, fc.calls.Load())

	res, err := p.Run(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, job.Key, res.Key)
	assert.Equal(t, []byte("png"), res.PNG)
	assert.EqualValues(t, 1, fc.calls.Load())
}
