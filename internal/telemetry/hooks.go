package telemetry

import (
	"context"
	"strconv"
	"time"

	"github.com/matzehuels/ogloc/pkg/errors"
	"github.com/matzehuels/ogloc/pkg/observability"
)

// Register routes pkg/observability events into the Prometheus metrics.
func Register() {
	observability.SetPipelineHooks(pipelineHooks{})
	observability.SetCacheHooks(cacheHooks{})
	observability.SetHTTPHooks(httpHooks{})
}

// outcome labels an error by its code.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if code := errors.GetCode(err); code != "" {
		return string(code)
	}
	if errors.IsContext(err) {
		return "canceled"
	}
	return string(errors.ErrCodeInternal)
}

type pipelineHooks struct{}

func (pipelineHooks) OnResolve(_ context.Context, source string, d time.Duration, err error) {
	if source == "" {
		source = "none"
	}
	ResolveTotal.WithLabelValues(source, outcome(err)).Inc()
	ResolveDuration.WithLabelValues(source).Observe(d.Seconds())
}

func (pipelineHooks) OnRender(_ context.Context, d time.Duration, err error) {
	RenderDuration.WithLabelValues(outcome(err)).Observe(d.Seconds())
}

type cacheHooks struct{}

func (cacheHooks) OnCacheHit(context.Context)   { CacheEventsTotal.WithLabelValues("hit").Inc() }
func (cacheHooks) OnCacheMiss(context.Context)  { CacheEventsTotal.WithLabelValues("miss").Inc() }
func (cacheHooks) OnCacheDedup(context.Context) { CacheEventsTotal.WithLabelValues("dedup").Inc() }
func (cacheHooks) OnCacheEvict(context.Context) { CacheEventsTotal.WithLabelValues("evict").Inc() }

type httpHooks struct{}

func (httpHooks) OnRequest(context.Context, string, string, string) {}

func (httpHooks) OnResponse(_ context.Context, _, host, _ string, status int, _ time.Duration) {
	RemoteRequestsTotal.WithLabelValues(host, strconv.Itoa(status)).Inc()
}

func (httpHooks) OnError(_ context.Context, _, host, _ string, _ error) {
	RemoteRequestsTotal.WithLabelValues(host, "error").Inc()
}
