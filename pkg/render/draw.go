package render

import (
	"image"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"

	"github.com/matzehuels/ogloc/pkg/errors"
	"github.com/matzehuels/ogloc/pkg/fonts"
)

const ellipsis = "…"

// monogramPalette colours avatar placeholders; the owner name picks one.
var monogramPalette = []string{
	"#e0524a", "#e9883a", "#d9b431", "#5bab55",
	"#3f9ec9", "#5b6fd6", "#9a5bd6", "#d65b9e",
}

// canvas wraps a gg context for one render.
type canvas struct {
	dc *gg.Context
}

func newCanvas(w, h int) *canvas {
	return &canvas{dc: gg.NewContext(w, h)}
}

func (c *canvas) close() { _ = c.dc.Close() }

func (c *canvas) encode(w io.Writer) error { return c.dc.EncodePNG(w) }

func (c *canvas) paint(d *Document, avatars map[string]image.Image) error {
	c.dc.ClearWithColor(gg.Hex(d.Canvas.Background))
	for i := range d.Elements {
		el := &d.Elements[i]
		var err error
		switch el.Kind {
		case KindRect:
			err = c.rect(el)
		case KindText:
			err = c.text(el)
		case KindAvatars:
			err = c.avatars(el, avatars)
		}
		if err != nil {
			return errors.Ensure(err, errors.ErrCodeRenderInternal, "element %d (%s)", i, el.Kind)
		}
	}
	return nil
}

func (c *canvas) rect(el *Element) error {
	c.dc.SetHexColor(el.Color)
	if el.Radius > 0 {
		c.dc.DrawRoundedRectangle(el.X, el.Y, el.Width, el.Height, el.Radius)
	} else {
		c.dc.DrawRectangle(el.X, el.Y, el.Width, el.Height)
	}
	return c.dc.Fill()
}

func (c *canvas) text(el *Element) error {
	if el.Text == "" {
		return nil
	}
	face, err := fonts.Face(el.Font, el.Size)
	if err != nil {
		return errors.Wrap(errors.ErrCodeRenderResource, err, "font")
	}
	m := face.Metrics()
	lineHeight := el.Size * el.LineHeight

	c.dc.SetFont(face)
	c.dc.SetHexColor(el.Color)
	for i, line := range layoutLines(el.Text, face, el.Width, el.MaxLines) {
		x := el.X
		switch el.Align {
		case "right":
			x = el.X + el.Width - face.Advance(line)
		case "center":
			x = el.X + (el.Width-face.Advance(line))/2
		}
		c.dc.DrawString(line, x, el.Y+m.Ascent+float64(i)*lineHeight)
	}
	return nil
}

// layoutLines wraps s to width and keeps at most maxLines lines. When text
// is dropped, or a single word is wider than the box, the last kept line
// ends in an ellipsis.
func layoutLines(s string, face text.Face, width float64, maxLines int) []string {
	wrapped := text.WrapText(s, face, width, text.WrapWord)
	lines := make([]string, 0, maxLines)
	for _, w := range wrapped {
		lines = append(lines, strings.TrimSpace(w.Text))
	}
	if len(lines) == 0 {
		return nil
	}

	cut := len(lines) > maxLines
	if cut {
		lines = lines[:maxLines]
	}
	last := len(lines) - 1
	if cut || face.Advance(lines[last]) > width {
		lines[last] = fitEllipsis(lines[last], face, width)
	}
	for i := 0; i < last; i++ {
		if face.Advance(lines[i]) > width {
			lines[i] = fitEllipsis(lines[i], face, width)
		}
	}
	return lines
}

// fitEllipsis trims runes from the end of s until s plus an ellipsis fits.
func fitEllipsis(s string, face text.Face, width float64) string {
	for s != "" {
		candidate := strings.TrimRightFunc(s, unicode.IsSpace) + ellipsis
		if face.Advance(candidate) <= width {
			return candidate
		}
		_, size := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-size]
	}
	return ellipsis
}

func (c *canvas) avatars(el *Element, imgs map[string]image.Image) error {
	r := el.Size / 2
	for i, o := range el.Owners {
		x := el.X + float64(i)*(el.Size+el.Gap)
		cx, cy := x+r, el.Y+r

		if img := imgs[o.Avatar]; img != nil {
			c.dc.Push()
			c.dc.DrawCircle(cx, cy, r)
			c.dc.Clip()
			c.dc.DrawImageEx(gg.ImageBufFromImage(img), gg.DrawImageOptions{
				X:         x,
				Y:         el.Y,
				DstWidth:  el.Size,
				DstHeight: el.Size,
			})
			c.dc.ResetClip()
			c.dc.Pop()
			continue
		}
		if err := c.monogram(o.Name, cx, cy, r); err != nil {
			return err
		}
	}
	return nil
}

// monogram draws a filled circle with the owner's initial.
func (c *canvas) monogram(name string, cx, cy, r float64) error {
	c.dc.SetHexColor(paletteColor(name))
	c.dc.DrawCircle(cx, cy, r)
	if err := c.dc.Fill(); err != nil {
		return err
	}

	initial := initialOf(name)
	face, err := fonts.Face(fonts.Bold, r)
	if err != nil {
		return errors.Wrap(errors.ErrCodeRenderResource, err, "font")
	}
	m := face.Metrics()
	c.dc.SetFont(face)
	c.dc.SetHexColor("#ffffff")
	c.dc.DrawString(initial, cx-face.Advance(initial)/2, cy+(m.Ascent-m.Descent)/2)
	return nil
}

func initialOf(name string) string {
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return string(unicode.ToUpper(r))
		}
	}
	return "?"
}

func paletteColor(name string) string {
	return monogramPalette[xxhash.Sum64String(name)%uint64(len(monogramPalette))]
}
