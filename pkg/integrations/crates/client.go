package crates

import (
	"context"
	"errors"
	"fmt"

	"github.com/matzehuels/ogloc/pkg/buildinfo"
	"github.com/matzehuels/ogloc/pkg/integrations"
	"github.com/matzehuels/ogloc/pkg/resolve"
)

// DefaultBaseURL is the crates.io API root.
const DefaultBaseURL = "https://crates.io/api/v1"

// Client provides access to the crates.io package registry API.
// It implements [resolve.RemoteSource].
//
// All methods are safe for concurrent use by multiple goroutines.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates a crates.io client rooted at baseURL. An empty baseURL
// means [DefaultBaseURL]. The client sends the User-Agent crates.io
// requires from API consumers.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	headers := map[string]string{
		"User-Agent": buildinfo.UserAgent(),
		"Accept":     "application/json",
	}
	return &Client{
		Client:  integrations.NewClient(headers),
		baseURL: baseURL,
	}
}

// Lookup fetches one version of a crate. An empty version selects the
// crate's default version as crates.io reports it.
//
// Returns:
//   - [integrations.ErrNotFound] if the crate or version doesn't exist
//   - [integrations.ErrNetwork] for HTTP failures (5xx, unexpected statuses)
//   - [integrations.ErrDecode] for bodies that aren't the expected JSON
//
// The owners request fails the lookup like the crate request does, except
// that a 404 from it means the crate lists no owners.
func (c *Client) Lookup(ctx context.Context, name, version string) (*resolve.RemoteRecord, error) {
	var data crateResponse
	url := fmt.Sprintf("%s/crates/%s", c.baseURL, integrations.PathEscape(name))
	if err := c.Get(ctx, url, &data); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return nil, fmt.Errorf("%w: crate %s", err, name)
		}
		return nil, err
	}
	if data.Crate.Name == "" {
		return nil, fmt.Errorf("%w: crate %s: response has no crate", integrations.ErrDecode, name)
	}

	if version == "" {
		version = data.Crate.latest()
		if version == "" {
			return nil, fmt.Errorf("%w: crate %s: no default version", integrations.ErrDecode, name)
		}
	}

	v := data.version(version)
	if v == nil {
		return nil, fmt.Errorf("%w: crate %s version %s", integrations.ErrNotFound, name, version)
	}

	owners, err := c.fetchOwners(ctx, data.Crate.Name)
	if err != nil {
		return nil, err
	}

	return &resolve.RemoteRecord{
		Name:             data.Crate.Name,
		Version:          v.Num,
		Description:      data.Crate.Description,
		Downloads:        data.Crate.Downloads,
		VersionDownloads: v.Downloads,
		License:          v.License,
		Owners:           owners,
	}, nil
}

func (c *Client) fetchOwners(ctx context.Context, name string) ([]resolve.Owner, error) {
	url := fmt.Sprintf("%s/crates/%s/owners", c.baseURL, integrations.PathEscape(name))

	var data ownersResponse
	if err := c.Get(ctx, url, &data); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("owners of crate %s: %w", name, err)
	}

	owners := make([]resolve.Owner, 0, len(data.Users))
	for _, u := range data.Users {
		owners = append(owners, resolve.Owner{
			Login:  u.Login,
			Name:   u.Name,
			Avatar: u.Avatar,
			Kind:   u.Kind,
		})
	}
	return owners, nil
}

type crateResponse struct {
	Crate    crateDef     `json:"crate"`
	Versions []versionDef `json:"versions"`
}

type crateDef struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	Downloads        int64  `json:"downloads"`
	DefaultVersion   string `json:"default_version"`
	MaxStableVersion string `json:"max_stable_version"`
	MaxVersion       string `json:"max_version"`
}

// latest picks the version crates.io shows on the crate page.
func (c crateDef) latest() string {
	switch {
	case c.DefaultVersion != "":
		return c.DefaultVersion
	case c.MaxStableVersion != "":
		return c.MaxStableVersion
	default:
		return c.MaxVersion
	}
}

type versionDef struct {
	Num       string `json:"num"`
	Downloads int64  `json:"downloads"`
	License   string `json:"license"`
	Yanked    bool   `json:"yanked"`
}

func (r *crateResponse) version(num string) *versionDef {
	for i := range r.Versions {
		if r.Versions[i].Num == num {
			return &r.Versions[i]
		}
	}
	return nil
}

type ownersResponse struct {
	Users []struct {
		Login  string `json:"login"`
		Name   string `json:"name"`
		Avatar string `json:"avatar"`
		Kind   string `json:"kind"`
	} `json:"users"`
}
