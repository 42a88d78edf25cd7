package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/matzehuels/ogloc/pkg/crate"
	"github.com/matzehuels/ogloc/pkg/errors"
)

// DefaultJobs is the number of images a batch renders concurrently when
// Jobs is not set.
const DefaultJobs = 8

// Status is the outcome of one batch item.
type Status int

const (
	// Written means a new image file was created.
	Written Status = iota
	// Skipped means the output file already existed and Force was off.
	Skipped
	// Failed means the item could not be rendered or written.
	Failed
)

func (s Status) String() string {
	switch s {
	case Written:
		return "written"
	case Skipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Item is the result for one input name.
type Item struct {
	Name    string
	Path    string
	Version string
	Status  Status
	Err     error
	Cached  bool
}

// Report lists the batch items in input order.
type Report struct {
	Items    []Item
	Duration time.Duration
}

// Count returns how many items ended with status s.
func (r Report) Count(s Status) int {
	n := 0
	for _, it := range r.Items {
		if it.Status == s {
			n++
		}
	}
	return n
}

// OK reports whether no item failed. Skipped items are not failures.
func (r Report) OK() bool {
	return r.Count(Failed) == 0
}

// Batch renders the latest image for many crates into a directory, one
// "<name>.png" per crate.
type Batch struct {
	Pipeline *Pipeline
	OutDir   string
	// Force overwrites existing files instead of skipping them.
	Force bool
	// Jobs bounds how many items are processed at once.
	Jobs int
	// Rate limits renders per second. Zero means unlimited.
	Rate float64
	// OnItem, if set, is called as each item finishes. Calls may come from
	// several goroutines at once.
	OnItem func(Item)
	Logger *log.Logger
}

// Run processes names and returns a report in input order. It never stops
// early because of a failed item; a canceled ctx fails the remaining items.
func (b *Batch) Run(ctx context.Context, names []string) Report {
	start := time.Now()
	logger := b.Logger
	if logger == nil {
		logger = log.Default()
	}
	jobs := b.Jobs
	if jobs <= 0 {
		jobs = DefaultJobs
	}
	var limiter *rate.Limiter
	if b.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(b.Rate), 1)
	}

	items := make([]Item, len(names))
	var g errgroup.Group
	g.SetLimit(jobs)
	for i, name := range names {
		g.Go(func() error {
			items[i] = b.one(ctx, limiter, name)
			it := items[i]
			if it.Err != nil {
				logger.Debug("batch item failed", "crate", it.Name, "err", it.Err)
			}
			if b.OnItem != nil {
				b.OnItem(it)
			}
			return nil
		})
	}
	_ = g.Wait()

	return Report{Items: items, Duration: time.Since(start)}
}

func (b *Batch) one(ctx context.Context, limiter *rate.Limiter, name string) Item {
	it := Item{Name: name}
	fail := func(err error) Item {
		it.Status, it.Err = Failed, err
		return it
	}

	if err := crate.ValidateName(name); err != nil {
		return fail(err)
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	it.Path = filepath.Join(b.OutDir, crate.FileName(name))

	if !b.Force {
		_, err := os.Stat(it.Path)
		if err == nil {
			it.Status = Skipped
			return it
		}
		if !os.IsNotExist(err) {
			return fail(errors.Wrap(errors.ErrCodeInternal, err, "check %s", it.Path))
		}
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return fail(err)
		}
	}

	res, err := b.Pipeline.Render(ctx, name, crate.Latest)
	if err != nil {
		return fail(err)
	}
	it.Version = res.Record.Version
	it.Cached = res.Cached

	if b.Force {
		err = replaceFile(it.Path, res.PNG)
	} else {
		err = createFile(it.Path, res.PNG)
		if os.IsExist(err) {
			it.Status = Skipped
			return it
		}
	}
	if err != nil {
		return fail(errors.Wrap(errors.ErrCodeInternal, err, "write %s", it.Path))
	}
	it.Status = Written
	return it
}

// createFile writes data to a file that must not exist yet.
func createFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

// replaceFile atomically replaces path with data via a temp file in the
// same directory.
func replaceFile(path string, data []byte) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, fmt.Sprintf(".%s.*.tmp", base))
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// WriteFile writes a single image, creating or replacing path.
func WriteFile(path string, data []byte) error {
	return replaceFile(path, data)
}
