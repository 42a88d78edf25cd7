package dump

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/matzehuels/ogloc/pkg/errors"
)

// Section file names inside the dump's data directory.
const (
	sectionCrates          = "crates.csv"
	sectionVersions        = "versions.csv"
	sectionCrateOwners     = "crate_owners.csv"
	sectionUsers           = "users.csv"
	sectionTeams           = "teams.csv"
	sectionDefaultVersions = "default_versions.csv"
	sectionCrateDownloads  = "crate_downloads.csv"
)

// requiredSections must all be present for a load to succeed.
var requiredSections = []string{
	sectionCrates,
	sectionVersions,
	sectionCrateOwners,
	sectionUsers,
	sectionTeams,
}

// requiredColumns lists the header columns each section must carry.
var requiredColumns = map[string][]string{
	sectionCrates:          {"id", "name", "description"},
	sectionVersions:        {"id", "crate_id", "num", "created_at", "downloads", "yanked"},
	sectionCrateOwners:     {"crate_id", "owner_id", "owner_kind"},
	sectionUsers:           {"id", "gh_login", "gh_avatar"},
	sectionTeams:           {"id", "login", "avatar"},
	sectionDefaultVersions: {"crate_id", "version_id"},
	sectionCrateDownloads:  {"crate_id", "downloads"},
}

// ctxCheckInterval is how many rows are read between cancellation checks.
const ctxCheckInterval = 1024

// rowFunc consumes one data row. Returning an error skips the row.
type rowFunc func(r row) error

// row gives named access to one CSV record.
type row struct {
	cols   map[string]int
	record []string
	line   int
}

func (r row) str(col string) string {
	i, ok := r.cols[col]
	if !ok || i >= len(r.record) {
		return ""
	}
	return r.record[i]
}

func (r row) int(col string) (int64, error) {
	s := r.str(col)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("column %s: invalid integer %q", col, s)
	}
	return n, nil
}

// optInt parses an optional integer column, treating empty as zero.
func (r row) optInt(col string) (int64, error) {
	if r.str(col) == "" {
		return 0, nil
	}
	return r.int(col)
}

func (r row) bool(col string) (bool, error) {
	switch s := r.str(col); s {
	case "t", "true", "1":
		return true, nil
	case "f", "false", "0", "":
		return false, nil
	default:
		return false, fmt.Errorf("column %s: invalid boolean %q", col, s)
	}
}

// timestampLayouts covers the PostgreSQL text forms found in dumps.
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05.999999Z07:00",
	"2006-01-02 15:04:05.999999",
	time.RFC3339Nano,
}

func (r row) time(col string) (time.Time, error) {
	s := r.str(col)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("column %s: invalid timestamp %q", col, s)
}

// readSection streams a CSV section through fn. Row-level problems are
// reported through skip and never abort the section; a missing header,
// missing required column or read failure returns ErrCodeMissingSection.
func readSection(ctx context.Context, name string, rd io.Reader, fn rowFunc, skip func(line int, err error)) (int, error) {
	cr := csv.NewReader(rd)
	cr.LazyQuotes = true
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeMissingSection, err, "section %s: unreadable header", name)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, c := range requiredColumns[name] {
		if _, ok := cols[c]; !ok {
			return 0, errors.New(errors.ErrCodeMissingSection, "section %s: missing column %q", name, c)
		}
	}

	rows := 0
	for {
		if rows%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return rows, err
			}
		}
		record, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			if pe, ok := err.(*csv.ParseError); ok {
				rows++
				skip(pe.Line, err)
				continue
			}
			return rows, errors.Wrap(errors.ErrCodeMissingSection, err, "section %s: read failed", name)
		}
		rows++
		line, _ := cr.FieldPos(0)
		if len(record) != len(header) {
			skip(line, fmt.Errorf("expected %d fields, got %d", len(header), len(record)))
			continue
		}
		if err := fn(row{cols: cols, record: record, line: line}); err != nil {
			skip(line, err)
		}
	}
}
