// Package resolve turns a crate name and version selector into the metadata
// record an image is rendered from.
//
// Lookups go to the in-memory [dump.Store] first. When a crate or version is
// missing locally and a [RemoteSource] is configured, the resolver makes one
// bounded round trip to it. Remote answers are returned to the caller only;
// the store is never modified.
package resolve

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/ogloc/pkg/crate"
	"github.com/matzehuels/ogloc/pkg/dump"
	"github.com/matzehuels/ogloc/pkg/errors"
	"github.com/matzehuels/ogloc/pkg/integrations"
	"github.com/matzehuels/ogloc/pkg/observability"
)

// DefaultTimeout bounds one remote round trip.
const DefaultTimeout = 8 * time.Second

// RemoteSource fetches metadata for crates the dump does not know.
// An empty version asks for the remote's default version.
type RemoteSource interface {
	Lookup(ctx context.Context, name, version string) (*RemoteRecord, error)
}

// Options configures a Resolver.
type Options struct {
	Remote  RemoteSource  // Nil disables the remote fallback
	Timeout time.Duration // Remote budget; 0 means DefaultTimeout
	Logger  *log.Logger   // Nil disables logging
}

// Resolver answers metadata lookups. Safe for concurrent use.
type Resolver struct {
	store   *dump.Store
	remote  RemoteSource
	timeout time.Duration
	logger  *log.Logger
}

// New creates a Resolver over store. A nil store behaves as empty.
func New(store *dump.Store, opts Options) *Resolver {
	if store == nil {
		store = &dump.Store{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Resolver{
		store:   store,
		remote:  opts.Remote,
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}
}

// Resolve returns the record for (name, sel).
//
// Errors carry one of the codes INVALID_PACKAGE, NOT_FOUND,
// NO_RENDERABLE_VERSION, REMOTE_TIMEOUT, REMOTE_UNAVAILABLE or
// REMOTE_MALFORMED.
func (r *Resolver) Resolve(ctx context.Context, name string, sel crate.Selector) (*Record, error) {
	start := time.Now()
	rec, err := r.resolve(ctx, name, sel)
	source := ""
	if rec != nil {
		source = string(rec.Source)
	}
	observability.Pipeline().OnResolve(ctx, source, time.Since(start), err)
	return rec, err
}

func (r *Resolver) resolve(ctx context.Context, name string, sel crate.Selector) (*Record, error) {
	if err := crate.ValidateName(name); err != nil {
		return nil, err
	}

	p := r.store.Package(name)
	if sel.IsLatest() {
		if p == nil {
			return r.fromRemote(ctx, name, "")
		}
		v := p.Latest()
		if v == nil {
			return nil, errors.New(errors.ErrCodeNoRenderableVersion, "crate %s has no renderable version", name)
		}
		return fromDump(p, v), nil
	}

	if v := r.store.Version(name, sel.Version); v != nil {
		return fromDump(p, v), nil
	}
	return r.fromRemote(ctx, name, sel.Version)
}

func (r *Resolver) fromRemote(ctx context.Context, name, version string) (*Record, error) {
	if r.remote == nil {
		return nil, notFound(name, version)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if r.logger != nil {
		r.logger.Debug("remote lookup", "crate", name, "version", version)
	}
	rr, err := r.remote.Lookup(ctx, name, version)
	if err != nil {
		return nil, classify(ctx, err, name, version)
	}
	if err := validateRemote(rr, name, version); err != nil {
		return nil, err
	}
	return fromRemote(rr), nil
}

// classify maps a RemoteSource failure onto the resolve error codes. Errors
// that already carry a code pass through.
func classify(ctx context.Context, err error, name, version string) error {
	switch {
	case errors.GetCode(err) != "":
		return err
	case stderrors.Is(err, integrations.ErrNotFound):
		return notFound(name, version)
	case stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded):
		return errors.Wrap(errors.ErrCodeRemoteTimeout, err, "remote lookup of %s timed out", name)
	case stderrors.Is(err, context.Canceled):
		return err
	case stderrors.Is(err, integrations.ErrDecode):
		return errors.Wrap(errors.ErrCodeRemoteMalformed, err, "remote returned a malformed record for %s", name)
	default:
		return errors.Wrap(errors.ErrCodeRemoteUnavailable, err, "remote lookup of %s failed", name)
	}
}

func validateRemote(rr *RemoteRecord, name, version string) error {
	switch {
	case rr == nil:
		return errors.New(errors.ErrCodeRemoteMalformed, "remote returned no record for %s", name)
	case !sameCrate(rr.Name, name):
		return errors.New(errors.ErrCodeRemoteMalformed, "remote returned crate %q for %q", rr.Name, name)
	case rr.Version == "":
		return errors.New(errors.ErrCodeRemoteMalformed, "remote returned no version for %s", name)
	case version != "" && rr.Version != version:
		return errors.New(errors.ErrCodeRemoteMalformed, "remote returned version %q for %s@%s", rr.Version, name, version)
	}
	return nil
}

// sameCrate compares names the way crates.io does: case-insensitive with '-'
// and '_' interchangeable.
func sameCrate(a, b string) bool {
	canon := func(s string) string { return strings.ReplaceAll(s, "_", "-") }
	return strings.EqualFold(canon(a), canon(b))
}

func notFound(name, version string) error {
	if version == "" {
		return errors.New(errors.ErrCodeNotFound, "crate %s not found", name)
	}
	return errors.New(errors.ErrCodeNotFound, "crate %s version %s not found", name, version)
}
