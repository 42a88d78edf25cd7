package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/ogloc/pkg/crate"
	"github.com/matzehuels/ogloc/pkg/errors"
)

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	name, err := crate.ParseFileName(chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sel, err := crate.ParseSelector(chi.URLParam(r, "version"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	job, err := s.renderer.Resolve(r.Context(), name, sel)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	etag := job.Key.ETag()
	h := w.Header()
	h.Set("ETag", etag)
	h.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(s.maxAge.Seconds())))
	if etagMatch(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	res, err := s.renderer.Run(r.Context(), job)
	if err != nil {
		h.Del("ETag")
		h.Del("Cache-Control")
		s.writeError(w, r, err)
		return
	}
	h.Set("Content-Type", "image/png")
	h.Set("Content-Length", strconv.Itoa(len(res.PNG)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(res.PNG)
	}
}

// etagMatch reports whether an If-None-Match header value matches etag. The
// header is a comma separated list; weak tags compare by their opaque part.
func etagMatch(header, etag string) bool {
	if header == "" {
		return false
	}
	want := strings.TrimPrefix(etag, "W/")
	for _, tag := range strings.Split(header, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "*" || strings.TrimPrefix(tag, "W/") == want {
			return true
		}
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

// writeError responds with the status for err's code and only the status
// text as body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(errors.GetCode(err))
	if errors.IsContext(err) {
		status = http.StatusServiceUnavailable
	}

	logger := s.logger.With("path", r.URL.Path, "request_id", requestIDFrom(r.Context()), "status", status)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "err", err)
	} else {
		logger.Debug("request rejected", "err", err)
	}
	http.Error(w, http.StatusText(status), status)
}

func statusHandler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, http.StatusText(status), status)
	}
}
