package template

import (
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/ogloc/pkg/errors"
	"github.com/matzehuels/ogloc/pkg/resolve"
)

func demoRecord() *resolve.Record {
	return &resolve.Record{
		Name:             "demo",
		Version:          "1.0.0",
		Description:      "A demo crate",
		Downloads:        12345,
		VersionDownloads: 738,
		License:          "MIT",
		Owners: []resolve.Owner{
			{Login: "alice", Name: "Alice", Avatar: "https://avatars.githubusercontent.com/u/1?v=4", Kind: "user"},
		},
		Source: resolve.SourceDump,
	}
}

type decodedDoc struct {
	Canvas  map[string]any   `toml:"canvas"`
	Element []map[string]any `toml:"element"`
}

func decode(t *testing.T, src []byte) decodedDoc {
	t.Helper()
	var doc decodedDoc
	_, err := toml.Decode(string(src), &doc)
	require.NoError(t, err, "document:\n%s", src)
	return doc
}

// shape lists element kinds and their keys, ignoring values.
func shape(doc decodedDoc) []string {
	var out []string
	for _, el := range doc.Element {
		keys := make([]string, 0, len(el))
		for k := range el {
			keys = append(keys, k)
		}
		out = append(out, el["kind"].(string)+":"+strings.Join(sortStrings(keys), ","))
	}
	return out
}

func sortStrings(s []string) []string {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
	return s
}

func texts(doc decodedDoc) []string {
	var out []string
	for _, el := range doc.Element {
		if s, ok := el["text"].(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func TestBindDemo(t *testing.T) {
	b := New()
	doc, err := b.Bind(demoRecord())
	require.NoError(t, err)
	assert.Equal(t, b.Revision(), doc.Revision)

	d := decode(t, doc.Source)
	assert.Equal(t, "#14161b", d.Canvas["background"])
	got := texts(d)
	assert.Contains(t, got, "demo")
	assert.Contains(t, got, "v1.0.0")
	assert.Contains(t, got, "A demo crate")
	assert.Contains(t, got, "12.3K downloads · 738 this version")
	assert.Contains(t, got, "by Alice")
	assert.Contains(t, got, "MIT")
}

func TestBindAvatars(t *testing.T) {
	rec := demoRecord()
	rec.Owners = nil
	for i := 0; i < 7; i++ {
		rec.Owners = append(rec.Owners, resolve.Owner{Login: "user" + string(rune('a'+i)), Avatar: "https://example.com/a.png?v=4"})
	}
	doc, err := New().Bind(rec)
	require.NoError(t, err)

	d := decode(t, doc.Source)
	var owners []map[string]any
	for _, el := range d.Element {
		if el["kind"] == "avatars" {
			owners = append(owners, el["owner"].([]map[string]any)...)
		}
	}
	require.Len(t, owners, MaxOwners)
	assert.Equal(t, "https://example.com/a.png?s=70&v=4", owners[0]["avatar"])
	assert.Contains(t, texts(d), "by usera, userb, userc, userd, usere and 2 more")
}

func TestBindEscapesHostileText(t *testing.T) {
	baseline, err := New().Bind(demoRecord())
	require.NoError(t, err)
	want := shape(decode(t, baseline.Source))

	hostile := []string{
		"\"\n[[element]]\nkind = \"rect\"\nx = 0",
		`\" , injected = true`,
		"''' multi\nline '''",
		`""" triple`,
		"# comment\n[canvas]\nbackground = \"#ff0000\"",
		"\x00\x01\x1b[31mred\x7f",
		"\u202eevil\u202c right-to-left",
		"{{ .Name }} {{ toml .Name }}",
		"\\u0022 escaped quote",
		"tab\tand\r\ncrlf",
	}
	for _, desc := range hostile {
		t.Run(desc, func(t *testing.T) {
			rec := demoRecord()
			rec.Description = desc
			rec.License = desc
			rec.Owners[0].Name = desc

			doc, err := New().Bind(rec)
			require.NoError(t, err)
			d := decode(t, doc.Source)

			assert.Equal(t, want, shape(d), "element structure changed")
			assert.Equal(t, "#14161b", d.Canvas["background"])
			assert.Len(t, d.Canvas, 2)
			assert.Contains(t, texts(d), truncate(sanitize(desc), MaxDescription))
		})
	}
}

func TestBindTruncatesDescription(t *testing.T) {
	rec := demoRecord()
	rec.Description = strings.Repeat("word ", 100)
	doc, err := New().Bind(rec)
	require.NoError(t, err)

	var desc string
	for _, s := range texts(decode(t, doc.Source)) {
		if strings.HasPrefix(s, "word") {
			desc = s
		}
	}
	assert.LessOrEqual(t, len([]rune(desc)), MaxDescription)
	assert.True(t, strings.HasSuffix(desc, "…"), "got %q", desc)
}

func TestBindNilRecord(t *testing.T) {
	_, err := New().Bind(nil)
	assert.True(t, errors.Is(err, errors.ErrCodeInternal))
}

func TestNewWithTemplate(t *testing.T) {
	b, err := NewWithTemplate(`name = {{ toml .Name }}`)
	require.NoError(t, err)
	assert.Len(t, b.Revision(), revisionLen)
	assert.NotEqual(t, New().Revision(), b.Revision())

	doc, err := b.Bind(demoRecord())
	require.NoError(t, err)
	assert.Equal(t, `name = "demo"`, string(doc.Source))

	_, err = NewWithTemplate(`{{ .Name `)
	assert.True(t, errors.Is(err, errors.ErrCodeRenderCompile))

	b, err = NewWithTemplate(`{{ .Nope }}`)
	require.NoError(t, err)
	_, err = b.Bind(demoRecord())
	assert.True(t, errors.Is(err, errors.ErrCodeRenderCompile))
}

func TestRevisionStable(t *testing.T) {
	assert.Equal(t, New().Revision(), New().Revision())
}
