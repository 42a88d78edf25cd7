// Package fonts provides the embedded font families used to draw cards.
//
// The Go fonts ship inside golang.org/x/image, so they are compiled into
// the binary and need no files at runtime. Sources are parsed once on first
// use and shared; [text.FontSource] is safe for concurrent use.
package fonts

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
)

// Family names accepted in documents.
const (
	Regular = "regular"
	Bold    = "bold"
	Mono    = "mono"
)

var families = map[string][]byte{
	Regular: goregular.TTF,
	Bold:    gobold.TTF,
	Mono:    gomono.TTF,
}

// ErrUnknownFamily is returned for family names outside [Families].
var ErrUnknownFamily = errors.New("unknown font family")

var (
	loadOnce sync.Once
	sources  map[string]*text.FontSource
	loadErr  error
)

func load() {
	sources = make(map[string]*text.FontSource, len(families))
	for name, data := range families {
		src, err := text.NewFontSource(data)
		if err != nil {
			loadErr = fmt.Errorf("load font %s: %w", name, err)
			return
		}
		sources[name] = src
	}
}

// Source returns the shared font source for a family.
func Source(family string) (*text.FontSource, error) {
	loadOnce.Do(load)
	if loadErr != nil {
		return nil, loadErr
	}
	src, ok := sources[family]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFamily, family)
	}
	return src, nil
}

// Face returns a face of family at size points.
func Face(family string, size float64) (text.Face, error) {
	src, err := Source(family)
	if err != nil {
		return nil, err
	}
	return src.Face(size), nil
}

// Families lists the available family names in lexical order.
func Families() []string {
	names := make([]string, 0, len(families))
	for name := range families {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
