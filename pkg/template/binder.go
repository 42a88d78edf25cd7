// Package template binds resolved crate metadata into the document the
// renderer rasterises.
//
// The document is TOML produced by executing a text/template. Every bound
// value is emitted through the "toml" template function, which writes a
// single-line TOML basic string. A hostile description can therefore only
// ever become the text of one element; it cannot add keys, tables or
// elements to the document.
package template

import (
	"bytes"
	_ "embed"
	"net/url"
	"strconv"
	"strings"
	"text/template"

	"github.com/matzehuels/ogloc/pkg/cache"
	"github.com/matzehuels/ogloc/pkg/errors"
	"github.com/matzehuels/ogloc/pkg/resolve"
)

//go:embed og.toml.tmpl
var defaultTemplate string

const (
	// MaxDescription is the longest description bound, in runes.
	MaxDescription = 180
	// MaxOwners is how many owner avatars a card shows.
	MaxOwners = 5
	// AvatarSize is the pixel size requested from avatar hosts.
	AvatarSize = 70

	revisionLen = 12
)

// Document is a bound template ready for rendering.
type Document struct {
	Source   []byte
	Revision string
}

// Binder executes the card template. Safe for concurrent use.
type Binder struct {
	tmpl     *template.Template
	revision string
}

// New returns a Binder for the embedded card template.
func New() *Binder {
	b, err := NewWithTemplate(defaultTemplate)
	if err != nil {
		panic(err)
	}
	return b
}

// NewWithTemplate parses text as the card template.
func NewWithTemplate(text string) (*Binder, error) {
	tmpl, err := template.New("og").
		Option("missingkey=error").
		Funcs(template.FuncMap{"toml": tomlString}).
		Parse(text)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeRenderCompile, err, "parse template")
	}
	return &Binder{
		tmpl:     tmpl,
		revision: cache.Hash([]byte(text))[:revisionLen],
	}, nil
}

// Revision identifies the template text. It changes whenever the template
// does, which invalidates every cached image rendered from the old one.
func (b *Binder) Revision() string { return b.revision }

// Bind renders rec into a document.
func (b *Binder) Bind(rec *resolve.Record) (Document, error) {
	if rec == nil {
		return Document{}, errors.New(errors.ErrCodeInternal, "bind: nil record")
	}
	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, newBindings(rec)); err != nil {
		return Document{}, errors.Wrap(errors.ErrCodeRenderCompile, err, "bind %s@%s", rec.Name, rec.Version)
	}
	return Document{Source: buf.Bytes(), Revision: b.revision}, nil
}

// bindings is the data the template sees. All strings are display-ready.
type bindings struct {
	Name             string
	Version          string
	VersionLabel     string
	Description      string
	License          string
	Downloads        string
	VersionDownloads string
	DownloadsLine    string
	Owners           []ownerBinding
	MoreOwners       int
	OwnerLine        string
	OwnerLineX       int
	OwnerLineWidth   int
}

type ownerBinding struct {
	Login  string
	Name   string
	Avatar string
}

// Layout constants shared with og.toml.tmpl.
const (
	avatarX      = 80
	avatarGap    = 18
	ownerTextGap = 24
	cardRight    = 1120
)

func newBindings(rec *resolve.Record) bindings {
	b := bindings{
		Name:             sanitize(rec.Name),
		Version:          sanitize(rec.Version),
		Description:      truncate(sanitize(rec.Description), MaxDescription),
		License:          sanitize(rec.License),
		Downloads:        FormatCount(rec.Downloads),
		VersionDownloads: FormatCount(rec.VersionDownloads),
	}
	b.VersionLabel = "v" + b.Version
	b.DownloadsLine = b.Downloads + " downloads"
	if rec.VersionDownloads > 0 && rec.VersionDownloads != rec.Downloads {
		b.DownloadsLine += " · " + b.VersionDownloads + " this version"
	}

	names := make([]string, 0, MaxOwners)
	for i, o := range rec.Owners {
		if i == MaxOwners {
			b.MoreOwners = len(rec.Owners) - MaxOwners
			break
		}
		ob := ownerBinding{
			Login:  sanitize(o.Login),
			Name:   sanitize(o.DisplayName()),
			Avatar: AvatarURL(o.Avatar),
		}
		b.Owners = append(b.Owners, ob)
		names = append(names, ob.Name)
	}
	b.OwnerLine = ownerLine(names, b.MoreOwners)

	n := len(b.Owners)
	b.OwnerLineX = avatarX
	if n > 0 {
		b.OwnerLineX += n*AvatarSize + (n-1)*avatarGap + ownerTextGap
	}
	b.OwnerLineWidth = cardRight - b.OwnerLineX
	return b
}

func ownerLine(names []string, more int) string {
	if len(names) == 0 {
		return ""
	}
	line := "by " + strings.Join(names, ", ")
	if more > 0 {
		line += " and " + strconv.Itoa(more) + " more"
	}
	return line
}

// AvatarURL returns the avatar URL sized for the card, or "" when raw is
// empty or not an absolute http(s) URL.
func AvatarURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return ""
	}
	q := u.Query()
	q.Set("s", strconv.Itoa(AvatarSize))
	u.RawQuery = q.Encode()
	return u.String()
}

// FormatCount formats a download count for display: 738, 12.3K, 4.5M, 1.2B.
// Values are truncated, not rounded, so 999999 is 999.9K rather than 1000K.
func FormatCount(n int64) string {
	if n < 0 {
		n = 0
	}
	units := []struct {
		div    int64
		suffix string
	}{
		{1_000_000_000, "B"},
		{1_000_000, "M"},
		{1_000, "K"},
	}
	for _, u := range units {
		if n >= u.div {
			tenths := n / (u.div / 10)
			s := strconv.FormatInt(tenths/10, 10)
			if d := tenths % 10; d != 0 {
				s += "." + strconv.FormatInt(d, 10)
			}
			return s + u.suffix
		}
	}
	return strconv.FormatInt(n, 10)
}
