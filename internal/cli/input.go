package cli

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/matzehuels/ogloc/pkg/crate"
	"github.com/matzehuels/ogloc/pkg/errors"
)

// readNames expands the bulk --in value. It is tried in this order:
// "-" reads newline separated names from stdin; a comma separated list of
// valid crate names is taken as is; anything else is a path to a file with
// one name per line. Blank lines and lines starting with '#' are ignored.
//
// Names read from stdin or a file are not validated here so that invalid
// ones show up as failed items in the report.
func readNames(in string, stdin io.Reader) ([]string, error) {
	in = strings.TrimSpace(in)
	switch {
	case in == "":
		return nil, errors.New(errors.ErrCodeInvalidInput, "no input given: pass --in with '-', a comma separated list or a file")
	case in == "-":
		return scanNames(stdin)
	}
	if names, ok := nameList(in); ok {
		return names, nil
	}

	f, err := os.Open(in)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "input %q is neither a list of crate names nor a readable file", in)
	}
	defer f.Close()
	return scanNames(f)
}

// nameList splits s on commas and reports whether every part is a valid
// crate name.
func nameList(s string) ([]string, bool) {
	parts := strings.Split(s, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if crate.ValidateName(p) != nil {
			return nil, false
		}
		names = append(names, p)
	}
	return names, true
}

func scanNames(r io.Reader) ([]string, error) {
	var names []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read names")
	}
	return names, nil
}

// dedupe drops repeated names, keeping the first occurrence.
func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := names[:0:0]
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
