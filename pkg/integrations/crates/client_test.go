package crates

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/matzehuels/ogloc/pkg/crate"
	"github.com/matzehuels/ogloc/pkg/dump"
	"github.com/matzehuels/ogloc/pkg/dump/dumptest"
	ogerrors "github.com/matzehuels/ogloc/pkg/errors"
	"github.com/matzehuels/ogloc/pkg/httputil"
	"github.com/matzehuels/ogloc/pkg/integrations"
	"github.com/matzehuels/ogloc/pkg/resolve"
)

func TestNewClient(t *testing.T) {
	c := NewClient("")
	if c.Client == nil {
		t.Error("expected client to be initialized")
	}
	if c.baseURL != DefaultBaseURL {
		t.Errorf("baseURL = %q, want %q", c.baseURL, DefaultBaseURL)
	}
}

func TestClientImplementsRemoteSource(t *testing.T) {
	var _ resolve.RemoteSource = NewClient("")
}

func serdeHandler(t *testing.T) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "ogloc/") {
			t.Errorf("User-Agent = %q, want ogloc/...", ua)
		}
		switch r.URL.Path {
		case "/crates/serde":
			json.NewEncoder(w).Encode(map[string]any{
				"crate": map[string]any{
					"name":            "serde",
					"description":     "A serialization framework",
					"downloads":       1000000,
					"default_version": "1.0.1",
					"max_version":     "2.0.0-rc.1",
				},
				"versions": []map[string]any{
					{"num": "2.0.0-rc.1", "downloads": 5, "license": "MIT"},
					{"num": "1.0.1", "downloads": 900, "license": "MIT OR Apache-2.0"},
					{"num": "1.0.0", "downloads": 100, "license": "MIT", "yanked": true},
				},
			})
		case "/crates/serde/owners":
			json.NewEncoder(w).Encode(map[string]any{
				"users": []map[string]any{
					{"login": "dtolnay", "name": "David Tolnay", "avatar": "https://avatars.githubusercontent.com/u/1?v=4", "kind": "user"},
					{"login": "github:serde-rs:publish", "name": "publish", "avatar": "", "kind": "team"},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func testClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c := NewClient(serverURL)
	c.WithRetry(httputil.Policy{Attempts: 2, Delay: time.Millisecond})
	return c
}

func TestClient_LookupDefaultVersion(t *testing.T) {
	server := httptest.NewServer(serdeHandler(t))
	defer server.Close()

	rec, err := testClient(t, server.URL).Lookup(context.Background(), "serde", "")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if rec.Name != "serde" || rec.Version != "1.0.1" {
		t.Errorf("got %s@%s, want serde@1.0.1", rec.Name, rec.Version)
	}
	if rec.VersionDownloads != 900 || rec.Downloads != 1000000 {
		t.Errorf("downloads = %d/%d", rec.VersionDownloads, rec.Downloads)
	}
	if rec.License != "MIT OR Apache-2.0" {
		t.Errorf("license = %q", rec.License)
	}
	if len(rec.Owners) != 2 || rec.Owners[0].Login != "dtolnay" || rec.Owners[1].Kind != "team" {
		t.Errorf("owners = %+v", rec.Owners)
	}
}

func TestClient_LookupExactVersion(t *testing.T) {
	server := httptest.NewServer(serdeHandler(t))
	defer server.Close()

	rec, err := testClient(t, server.URL).Lookup(context.Background(), "serde", "1.0.0")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if rec.Version != "1.0.0" || rec.VersionDownloads != 100 {
		t.Errorf("got %s with %d downloads", rec.Version, rec.VersionDownloads)
	}
}

func TestClient_LookupNotFound(t *testing.T) {
	server := httptest.NewServer(serdeHandler(t))
	defer server.Close()

	c := testClient(t, server.URL)
	if _, err := c.Lookup(context.Background(), "nonexistent", ""); !errors.Is(err, integrations.ErrNotFound) {
		t.Errorf("missing crate: expected ErrNotFound, got %v", err)
	}
	if _, err := c.Lookup(context.Background(), "serde", "9.9.9"); !errors.Is(err, integrations.ErrNotFound) {
		t.Errorf("missing version: expected ErrNotFound, got %v", err)
	}
}

// ownersStatus serves serde with the owners endpoint answering status.
func ownersStatus(t *testing.T, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/crates/serde/owners" {
			w.WriteHeader(status)
			return
		}
		serdeHandler(t)(w, r)
	}))
}

func TestClient_LookupOwnersNotFound(t *testing.T) {
	server := ownersStatus(t, http.StatusNotFound)
	defer server.Close()

	rec, err := testClient(t, server.URL).Lookup(context.Background(), "serde", "")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if len(rec.Owners) != 0 {
		t.Errorf("owners = %+v, want none", rec.Owners)
	}
}

func TestClient_LookupOwnersFailure(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusServiceUnavailable} {
		server := ownersStatus(t, status)
		rec, err := testClient(t, server.URL).Lookup(context.Background(), "serde", "")
		server.Close()
		if !errors.Is(err, integrations.ErrNetwork) {
			t.Errorf("status %d: expected ErrNetwork, got %v (record %+v)", status, err, rec)
		}
	}
}

func TestClient_LookupOwnersMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/crates/serde/owners" {
			w.Write([]byte("<html>"))
			return
		}
		serdeHandler(t)(w, r)
	}))
	defer server.Close()

	_, err := testClient(t, server.URL).Lookup(context.Background(), "serde", "")
	if !errors.Is(err, integrations.ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

// stallingOwners serves serde but holds the owners request for delay.
func stallingOwners(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/crates/serde/owners" {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		serdeHandler(t)(w, r)
	}))
}

func TestClient_LookupOwnersDeadline(t *testing.T) {
	server := stallingOwners(t, 300*time.Millisecond)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	rec, err := testClient(t, server.URL).Lookup(ctx, "serde", "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v (record %+v)", err, rec)
	}
}

func TestResolverTimesOutOnStalledOwners(t *testing.T) {
	server := stallingOwners(t, 300*time.Millisecond)
	defer server.Close()

	store, err := dump.LoadReader(context.Background(), bytes.NewReader(dumptest.Archive(t, dumptest.Minimal())), dump.Options{})
	if err != nil {
		t.Fatalf("load dump: %v", err)
	}
	r := resolve.New(store, resolve.Options{Remote: testClient(t, server.URL), Timeout: 100 * time.Millisecond})

	rec, err := r.Resolve(context.Background(), "serde", crate.Latest)
	if !ogerrors.Is(err, ogerrors.ErrCodeRemoteTimeout) {
		t.Errorf("expected %s, got %v (record %+v)", ogerrors.ErrCodeRemoteTimeout, err, rec)
	}
}

func TestClient_LookupMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>"},
		{"no crate", `{"versions":[]}`},
		{"no default version", `{"crate":{"name":"serde"},"versions":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := testClient(t, server.URL).Lookup(context.Background(), "serde", "")
			if !errors.Is(err, integrations.ErrDecode) {
				t.Errorf("expected ErrDecode, got %v", err)
			}
		})
	}
}

func TestClient_LookupServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := testClient(t, server.URL).Lookup(context.Background(), "serde", "")
	if !errors.Is(err, integrations.ErrNetwork) {
		t.Errorf("expected ErrNetwork, got %v", err)
	}
}

func TestCrateDefLatest(t *testing.T) {
	tests := []struct {
		def  crateDef
		want string
	}{
		{crateDef{DefaultVersion: "1.0.0", MaxStableVersion: "1.1.0", MaxVersion: "2.0.0-rc"}, "1.0.0"},
		{crateDef{MaxStableVersion: "1.1.0", MaxVersion: "2.0.0-rc"}, "1.1.0"},
		{crateDef{MaxVersion: "2.0.0-rc"}, "2.0.0-rc"},
		{crateDef{}, ""},
	}
	for _, tt := range tests {
		if got := tt.def.latest(); got != tt.want {
			t.Errorf("latest() = %q, want %q", got, tt.want)
		}
	}
}
