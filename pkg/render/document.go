package render

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/ogloc/pkg/errors"
	"github.com/matzehuels/ogloc/pkg/fonts"
)

// Element kinds.
const (
	KindRect    = "rect"
	KindText    = "text"
	KindAvatars = "avatars"
)

// Document is a decoded card document.
type Document struct {
	Canvas   Canvas    `toml:"canvas"`
	Elements []Element `toml:"element"`
}

// Canvas holds page-wide settings.
type Canvas struct {
	Background string `toml:"background"`
	Accent     string `toml:"accent"`
}

// Element is one painted item. Which fields apply depends on Kind.
type Element struct {
	Kind string `toml:"kind"`

	X      float64 `toml:"x"`
	Y      float64 `toml:"y"`
	Width  float64 `toml:"width"`
	Height float64 `toml:"height"`
	Color  string  `toml:"color"`
	Radius float64 `toml:"radius"`

	// text
	Text       string  `toml:"text"`
	Font       string  `toml:"font"`
	Size       float64 `toml:"size"`
	MaxLines   int     `toml:"max_lines"`
	LineHeight float64 `toml:"line_height"`
	Align      string  `toml:"align"`

	// avatars; Size is the avatar diameter
	Gap    float64 `toml:"gap"`
	Owners []Owner `toml:"owner"`
}

// Owner is one avatar slot.
type Owner struct {
	Name   string `toml:"name"`
	Avatar string `toml:"avatar"`
}

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

// Decode parses and validates a document.
func Decode(src []byte) (*Document, error) {
	var doc Document
	md, err := toml.Decode(string(src), &doc)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeRenderCompile, err, "decode document")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, errors.New(errors.ErrCodeRenderCompile, "unknown keys: %s", strings.Join(keys, ", "))
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *Document) validate() error {
	if d.Canvas.Background == "" {
		d.Canvas.Background = "#ffffff"
	}
	if !hexColor.MatchString(d.Canvas.Background) {
		return errors.New(errors.ErrCodeRenderCompile, "canvas: invalid background %q", d.Canvas.Background)
	}
	if d.Canvas.Accent != "" && !hexColor.MatchString(d.Canvas.Accent) {
		return errors.New(errors.ErrCodeRenderCompile, "canvas: invalid accent %q", d.Canvas.Accent)
	}
	for i := range d.Elements {
		if err := d.Elements[i].validate(d.Canvas); err != nil {
			err.Message = fmt.Sprintf("element %d (%s): %s", i, d.Elements[i].Kind, err.Message)
			return err
		}
	}
	return nil
}

func (e *Element) validate(c Canvas) *errors.Error {
	if e.Color == "" {
		e.Color = c.Accent
		if e.Color == "" {
			e.Color = "#000000"
		}
	}
	if !hexColor.MatchString(e.Color) {
		return errors.New(errors.ErrCodeRenderCompile, "invalid color %q", e.Color)
	}

	switch e.Kind {
	case KindRect:
		if e.Width <= 0 || e.Height <= 0 {
			return errors.New(errors.ErrCodeRenderCompile, "rect needs positive width and height")
		}
	case KindText:
		if e.Size <= 0 || e.Width <= 0 {
			return errors.New(errors.ErrCodeRenderCompile, "text needs positive size and width")
		}
		if e.Font == "" {
			e.Font = fonts.Regular
		}
		if _, err := fonts.Source(e.Font); err != nil {
			return errors.Wrap(errors.ErrCodeRenderResource, err, "font")
		}
		if e.MaxLines <= 0 {
			e.MaxLines = 1
		}
		if e.LineHeight <= 0 {
			e.LineHeight = 1.2
		}
		switch e.Align {
		case "", "left", "center", "right":
		default:
			return errors.New(errors.ErrCodeRenderCompile, "invalid align %q", e.Align)
		}
	case KindAvatars:
		if e.Size <= 0 {
			return errors.New(errors.ErrCodeRenderCompile, "avatars need a positive size")
		}
	default:
		return errors.New(errors.ErrCodeRenderCompile, "unknown kind %q", e.Kind)
	}
	return nil
}
