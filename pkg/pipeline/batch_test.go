package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/ogloc/pkg/dump/dumptest"
	"github.com/matzehuels/ogloc/pkg/errors"
	"github.com/matzehuels/ogloc/pkg/template"
)

func TestBatchSkipsExistingAndReportsMissing(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "demo.png")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0o644))

	b := &Batch{Pipeline: newPipeline(t, dumptest.Minimal(), nil), OutDir: dir}
	report := b.Run(context.Background(), []string{"demo", "missing"})

	require.Len(t, report.Items, 2)
	assert.Equal(t, "demo", report.Items[0].Name)
	assert.Equal(t, Skipped, report.Items[0].Status)
	assert.Equal(t, "missing", report.Items[1].Name)
	assert.Equal(t, Failed, report.Items[1].Status)
	assert.True(t, errors.Is(report.Items[1].Err, errors.ErrCodeNotFound))
	assert.False(t, report.OK())

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), data)
	assert.NoFileExists(t, filepath.Join(dir, "missing.png"))
}

func TestBatchWritesAndForces(t *testing.T) {
	dir := t.TempDir()
	p := newPipeline(t, dumptest.Demo(), nil)

	b := &Batch{Pipeline: p, OutDir: dir}
	report := b.Run(context.Background(), []string{"demo", "gone", "Not A Name"})
	require.Len(t, report.Items, 3)
	assert.Equal(t, Written, report.Items[0].Status)
	assert.Equal(t, "2.0.0-beta.1", report.Items[0].Version)
	assert.Equal(t, Failed, report.Items[1].Status)
	assert.True(t, errors.Is(report.Items[1].Err, errors.ErrCodeNoRenderableVersion))
	assert.Equal(t, Failed, report.Items[2].Status)
	assert.True(t, errors.Is(report.Items[2].Err, errors.ErrCodeInvalidPackage))
	assert.Equal(t, 1, report.Count(Written))
	assert.Equal(t, 2, report.Count(Failed))

	written, err := os.ReadFile(filepath.Join(dir, "demo.png"))
	require.NoError(t, err)
	assert.NotEmpty(t, written)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "demo.png"), []byte("stale"), 0o644))
	forced := (&Batch{Pipeline: p, OutDir: dir, Force: true}).Run(context.Background(), []string{"demo"})
	assert.Equal(t, Written, forced.Items[0].Status)
	assert.True(t, forced.Items[0].Cached)
	assert.True(t, forced.OK())

	data, err := os.ReadFile(filepath.Join(dir, "demo.png"))
	require.NoError(t, err)
	assert.Equal(t, written, data)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestBatchKeepsInputOrder(t *testing.T) {
	p := New(fakeResolver{}, template.New(), &fakeCompiler{}, newCache(t), nil)
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}

	var mu sync.Mutex
	var seen []string
	b := &Batch{Pipeline: p, OutDir: t.TempDir(), Jobs: 4, OnItem: func(it Item) {
		mu.Lock()
		seen = append(seen, it.Name)
		mu.Unlock()
	}}
	report := b.Run(context.Background(), names)

	require.Len(t, report.Items, len(names))
	for i, it := range report.Items {
		assert.Equal(t, names[i], it.Name)
		assert.Equal(t, Written, it.Status)
	}
	assert.ElementsMatch(t, names, seen)
}

func TestBatchRateLimit(t *testing.T) {
	p := New(fakeResolver{}, template.New(), &fakeCompiler{}, newCache(t), nil)
	b := &Batch{Pipeline: p, OutDir: t.TempDir(), Jobs: 4, Rate: 20}

	start := time.Now()
	report := b.Run(context.Background(), []string{"a", "b", "c", "d", "e"})
	assert.True(t, report.OK())
	// One token is available up front, the other four arrive 50ms apart.
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestBatchCanceled(t *testing.T) {
	p := New(fakeResolver{}, template.New(), &fakeCompiler{}, newCache(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := (&Batch{Pipeline: p, OutDir: t.TempDir()}).Run(ctx, []string{"a", "b"})
	for _, it := range report.Items {
		assert.Equal(t, Failed, it.Status)
		assert.ErrorIs(t, it.Err, context.Canceled)
	}
}

func TestCreateFileRefusesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.png")
	require.NoError(t, createFile(path, []byte("first")))
	err := createFile(path, []byte("second"))
	assert.True(t, os.IsExist(err), "got %v", err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "written", Written.String())
	assert.Equal(t, "skipped", Skipped.String())
	assert.Equal(t, "failed", Failed.String())
}
