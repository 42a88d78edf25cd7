package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ogerrors "github.com/matzehuels/ogloc/pkg/errors"
	"github.com/matzehuels/ogloc/pkg/fonts"
	"github.com/matzehuels/ogloc/pkg/httputil"
	"github.com/matzehuels/ogloc/pkg/resolve"
	"github.com/matzehuels/ogloc/pkg/template"
)

func demoDocument(t *testing.T) []byte {
	t.Helper()
	doc, err := template.New().Bind(&resolve.Record{
		Name:        "demo",
		Version:     "1.0.0",
		Description: "A demo crate that renders a social preview card for tests.",
		Downloads:   12345,
		License:     "MIT OR Apache-2.0",
		Owners: []resolve.Owner{
			{Login: "alice", Name: "Alice", Avatar: "https://example.com/alice.png"},
			{Login: "bob", Avatar: "https://example.com/bob.png"},
		},
	})
	require.NoError(t, err)
	return doc.Source
}

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestCompileDemo(t *testing.T) {
	out, err := New(Options{Workers: 2}).Compile(context.Background(), demoDocument(t))
	require.NoError(t, err)
	require.NotEmpty(t, out)

	img := decodePNG(t, out)
	assert.Equal(t, image.Rect(0, 0, Width, Height), img.Bounds())
}

func TestCompileFixedSize(t *testing.T) {
	doc := `
[canvas]
background = "#000"

[[element]]
kind = "rect"
x = -100
y = -100
width = 5000
height = 5000
color = "#ff0000"
`
	out, err := New(Options{}).Compile(context.Background(), []byte(doc))
	require.NoError(t, err)
	img := decodePNG(t, out)
	assert.Equal(t, Width, img.Bounds().Dx())
	assert.Equal(t, Height, img.Bounds().Dy())

	r, g, b, _ := img.At(Width/2, Height/2).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Zero(t, g)
	assert.Zero(t, b)
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want ogerrors.Code
	}{
		{"not toml", "[[element]\nkind =", ogerrors.ErrCodeRenderCompile},
		{"unknown key", "[canvas]\nbackground = \"#fff\"\nscript = \"x\"", ogerrors.ErrCodeRenderCompile},
		{"unknown table", "[macro]\nrun = true", ogerrors.ErrCodeRenderCompile},
		{"unknown kind", "[[element]]\nkind = \"iframe\"", ogerrors.ErrCodeRenderCompile},
		{"bad color", "[[element]]\nkind = \"rect\"\nwidth = 1\nheight = 1\ncolor = \"red\"", ogerrors.ErrCodeRenderCompile},
		{"bad background", "[canvas]\nbackground = \"url(x)\"", ogerrors.ErrCodeRenderCompile},
		{"empty rect", "[[element]]\nkind = \"rect\"", ogerrors.ErrCodeRenderCompile},
		{"bad align", "[[element]]\nkind = \"text\"\ntext = \"x\"\nsize = 10\nwidth = 10\nalign = \"justify\"", ogerrors.ErrCodeRenderCompile},
		{"unknown font", "[[element]]\nkind = \"text\"\ntext = \"x\"\nsize = 10\nwidth = 10\nfont = \"wingdings\"", ogerrors.ErrCodeRenderResource},
		{"wrong type", "[[element]]\nkind = \"text\"\nsize = \"big\"", ogerrors.ErrCodeRenderCompile},
	}
	r := New(Options{Workers: 1})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Compile(context.Background(), []byte(tt.doc))
			require.Error(t, err)
			assert.Equal(t, tt.want, ogerrors.GetCode(err), "got %v", err)
		})
	}
}

func TestCompileEmptyDocument(t *testing.T) {
	out, err := New(Options{}).Compile(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Width, decodePNG(t, out).Bounds().Dx())
}

type fakeAvatars struct {
	calls atomic.Int32
}

func (f *fakeAvatars) Load(_ context.Context, url string) (image.Image, error) {
	f.calls.Add(1)
	if strings.Contains(url, "bob") {
		return nil, errors.New("404")
	}
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img, nil
}

func TestCompileAvatarFallback(t *testing.T) {
	loader := &fakeAvatars{}
	out, err := New(Options{Avatars: loader}).Compile(context.Background(), demoDocument(t))
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.Equal(t, int32(2), loader.calls.Load())
}

func TestCompileWaitsForWorker(t *testing.T) {
	r := New(Options{Workers: 1})
	require.NoError(t, r.sem.Acquire(context.Background(), 1))
	defer r.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Compile(ctx, demoDocument(t))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type panicImage struct{}

func (panicImage) ColorModel() color.Model { return color.RGBAModel }
func (panicImage) Bounds() image.Rectangle { return image.Rect(0, 0, 4, 4) }
func (panicImage) At(int, int) color.Color { panic("corrupt image") }

func TestRasterizeRecoversPanic(t *testing.T) {
	d, err := Decode([]byte("[[element]]\nkind = \"avatars\"\nsize = 70\n[[element.owner]]\nname = \"x\"\navatar = \"https://example.com/x.png\""))
	require.NoError(t, err)

	_, err = rasterize(d, map[string]image.Image{"https://example.com/x.png": panicImage{}})
	assert.Equal(t, ogerrors.ErrCodeRenderInternal, ogerrors.GetCode(err), "got %v", err)
}

func TestLayoutLines(t *testing.T) {
	face, err := fonts.Face(fonts.Regular, 20)
	require.NoError(t, err)

	long := strings.Repeat("lorem ipsum dolor sit amet ", 20)
	lines := layoutLines(long, face, 300, 2)
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[1], ellipsis), "got %q", lines[1])
	for _, l := range lines {
		assert.LessOrEqual(t, face.Advance(l), 300.0)
	}

	lines = layoutLines("short", face, 300, 3)
	assert.Equal(t, []string{"short"}, lines)

	word := strings.Repeat("x", 200)
	lines = layoutLines(word, face, 100, 1)
	require.Len(t, lines, 1)
	assert.LessOrEqual(t, face.Advance(lines[0]), 100.0)
}

func TestInitialAndPalette(t *testing.T) {
	assert.Equal(t, "A", initialOf("alice"))
	assert.Equal(t, "G", initialOf("github:org:team"))
	assert.Equal(t, "?", initialOf("---"))
	assert.Equal(t, paletteColor("alice"), paletteColor("alice"))
}

func TestHTTPAvatarLoader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 70, 70))))

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/missing.png" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Path == "/garbage.png" {
			w.Write([]byte("not an image"))
			return
		}
		w.Write(buf.Bytes())
	}))
	defer server.Close()

	l, err := NewHTTPAvatarLoader(4)
	require.NoError(t, err)
	l.Client().WithHTTPClient(server.Client()).WithRetry(httputil.Policy{Attempts: 1})

	img, err := l.Load(context.Background(), server.URL+"/a.png")
	require.NoError(t, err)
	assert.Equal(t, 70, img.Bounds().Dx())

	_, err = l.Load(context.Background(), server.URL+"/a.png")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "second load should be cached")

	_, err = l.Load(context.Background(), server.URL+"/missing.png")
	assert.Error(t, err)
	_, err = l.Load(context.Background(), server.URL+"/garbage.png")
	assert.Error(t, err)
}
