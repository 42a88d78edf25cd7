package dump

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/gzip"

	"github.com/matzehuels/ogloc/pkg/errors"
)

// Options configures a load.
type Options struct {
	// Filter restricts which crates are kept. The zero value keeps all.
	Filter LoadFilter
	// Logger receives skipped-row diagnostics. Nil disables logging.
	Logger *log.Logger
}

// Load reads a crates.io db-dump archive from path. With a selective filter
// the crates section is read in a first pass, so rows of other crates are
// dropped while streaming even when they precede crates.csv in the archive.
func Load(ctx context.Context, p string, opts Options) (*Store, error) {
	start := time.Now()
	f, err := os.Open(p)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDumpIO, err, "open dump %s", p)
	}
	defer f.Close()

	l := newLoader(opts)
	if opts.Filter.selective() {
		if err := l.readArchive(ctx, f, sectionCrates); err != nil {
			return nil, err
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, errors.Wrap(errors.ErrCodeDumpIO, err, "rewind dump %s", p)
		}
	}
	return l.load(ctx, f, start)
}

// LoadReader reads a db-dump archive from r. The archive may be a plain tar
// or gzip-compressed; the format is detected from the leading bytes.
func LoadReader(ctx context.Context, r io.Reader, opts Options) (*Store, error) {
	return newLoader(opts).load(ctx, r, time.Now())
}

func (l *loader) load(ctx context.Context, r io.Reader, start time.Time) (*Store, error) {
	if err := l.readArchive(ctx, r, ""); err != nil {
		return nil, err
	}
	for _, name := range requiredSections {
		if !l.seen[name] {
			return nil, errors.New(errors.ErrCodeMissingSection, "section %s not found in dump", name)
		}
	}

	store := l.link()
	store.stats.Duration = time.Since(start)
	l.summarize()
	return store, nil
}

// readArchive reads the known sections of the archive in r. When only is
// set, it stops after that section.
func (l *loader) readArchive(ctx context.Context, r io.Reader, only string) error {
	br := bufio.NewReaderSize(r, 64<<10)

	var src io.Reader = br
	if magic, _ := br.Peek(2); bytes.Equal(magic, []byte{0x1f, 0x8b}) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return errors.Wrap(errors.ErrCodeDumpIO, err, "open gzip stream")
		}
		defer zr.Close()
		src = zr
	}

	tr := tar.NewReader(src)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(errors.ErrCodeDumpIO, err, "read archive")
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := path.Base(hdr.Name)
		if _, known := requiredColumns[name]; !known {
			continue
		}
		if only != "" && name != only {
			continue
		}
		if err := l.readSection(ctx, name, tr); err != nil {
			return err
		}
		if only != "" {
			return nil
		}
	}
}

type crateRow struct {
	id          int64
	name        string
	description string
	downloads   int64
	line        int
}

type versionRow struct {
	id        int64
	crateID   int64
	num       string
	createdAt time.Time
	downloads int64
	yanked    bool
	license   string
	line      int
}

type ownerLink struct {
	crateID int64
	owner   OwnerID
	line    int
}

type idPair struct {
	crateID int64
	value   int64
	line    int
}

// loader buffers parsed rows until the archive is exhausted. Once crates.csv
// has been read, rows of crates the filter rejects are dropped as they
// stream; rows read before that are buffered and sorted out by link.
type loader struct {
	opts       Options
	seen       map[string]bool
	stats      map[string]SectionStats
	known      map[int64]bool
	kept       map[int64]bool
	cratesRead bool

	crates []crateRow
	vers   []versionRow
	links  []ownerLink
	owners map[OwnerID]*Owner
	defs   []idPair
	dls    []idPair
}

func newLoader(opts Options) *loader {
	return &loader{
		opts:   opts,
		seen:   make(map[string]bool),
		stats:  make(map[string]SectionStats),
		known:  make(map[int64]bool),
		kept:   make(map[int64]bool),
		owners: make(map[OwnerID]*Owner),
	}
}

// admit reports whether a row of crateID is worth buffering.
func (l *loader) admit(crateID int64) (bool, error) {
	if !l.cratesRead {
		return true, nil
	}
	if !l.known[crateID] {
		return false, errors.New(errors.ErrCodeMalformedRow, "unknown crate id %d", crateID)
	}
	return l.kept[crateID], nil
}

func (l *loader) skip(section string, line int, err error) {
	st := l.stats[section]
	st.Skipped++
	l.stats[section] = st
	if l.opts.Logger != nil {
		l.opts.Logger.Debug("skipped dump row", "section", section, "line", line, "cause", err)
	}
}

func (l *loader) readSection(ctx context.Context, name string, r io.Reader) error {
	if l.seen[name] {
		return nil
	}
	l.seen[name] = true

	var fn rowFunc
	switch name {
	case sectionCrates:
		fn = l.crateRow
	case sectionVersions:
		fn = l.versionRow
	case sectionCrateOwners:
		fn = l.ownerRow
	case sectionUsers:
		fn = l.ownerTable(OwnerUser, "gh_login", "gh_avatar")
	case sectionTeams:
		fn = l.ownerTable(OwnerTeam, "login", "avatar")
	case sectionDefaultVersions:
		fn = l.pairRow(&l.defs, "version_id")
	case sectionCrateDownloads:
		fn = l.pairRow(&l.dls, "downloads")
	}

	rows, err := readSection(ctx, name, r, fn, func(ln int, err error) {
		l.skip(name, ln, err)
	})
	st := l.stats[name]
	st.Rows = rows
	l.stats[name] = st
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		// Optional sections degrade to absent rather than failing the load.
		if !isRequired(name) {
			if l.opts.Logger != nil {
				l.opts.Logger.Warn("ignoring unreadable optional section", "section", name, "error", err)
			}
			l.defs, l.dls = dropOptional(name, l.defs, l.dls)
			return nil
		}
		return err
	}
	if name == sectionCrates {
		l.cratesRead = true
	}
	return nil
}

func isRequired(name string) bool {
	for _, s := range requiredSections {
		if s == name {
			return true
		}
	}
	return false
}

func dropOptional(name string, defs, dls []idPair) ([]idPair, []idPair) {
	switch name {
	case sectionDefaultVersions:
		return nil, dls
	case sectionCrateDownloads:
		return defs, nil
	}
	return defs, dls
}

func (l *loader) crateRow(r row) error {
	id, err := r.int("id")
	if err != nil {
		return err
	}
	name := r.str("name")
	if name == "" {
		return errors.New(errors.ErrCodeMalformedRow, "empty crate name")
	}
	downloads, err := r.optInt("downloads")
	if err != nil {
		return err
	}
	if l.known[id] {
		return errors.New(errors.ErrCodeMalformedRow, "duplicate crate id %d", id)
	}
	l.known[id] = true
	if !l.opts.Filter.Matches(name) {
		return nil
	}
	l.kept[id] = true
	l.crates = append(l.crates, crateRow{id: id, name: name, description: r.str("description"), downloads: downloads, line: r.line})
	return nil
}

func (l *loader) versionRow(r row) error {
	id, err := r.int("id")
	if err != nil {
		return err
	}
	crateID, err := r.int("crate_id")
	if err != nil {
		return err
	}
	num := r.str("num")
	if num == "" {
		return errors.New(errors.ErrCodeMalformedRow, "empty version number")
	}
	created, err := r.time("created_at")
	if err != nil {
		return err
	}
	downloads, err := r.optInt("downloads")
	if err != nil {
		return err
	}
	yanked, err := r.bool("yanked")
	if err != nil {
		return err
	}
	if ok, err := l.admit(crateID); !ok {
		return err
	}
	l.vers = append(l.vers, versionRow{
		id: id, crateID: crateID, num: num, createdAt: created,
		downloads: downloads, yanked: yanked, license: r.str("license"), line: r.line,
	})
	return nil
}

func (l *loader) ownerRow(r row) error {
	crateID, err := r.int("crate_id")
	if err != nil {
		return err
	}
	ownerID, err := r.int("owner_id")
	if err != nil {
		return err
	}
	kind, err := r.int("owner_kind")
	if err != nil {
		return err
	}
	if kind != int64(OwnerUser) && kind != int64(OwnerTeam) {
		return errors.New(errors.ErrCodeMalformedRow, "unknown owner_kind %d", kind)
	}
	if ok, err := l.admit(crateID); !ok {
		return err
	}
	l.links = append(l.links, ownerLink{crateID: crateID, owner: OwnerID{Kind: OwnerKind(kind), Num: ownerID}, line: r.line})
	return nil
}

func (l *loader) ownerTable(kind OwnerKind, loginCol, avatarCol string) rowFunc {
	return func(r row) error {
		id, err := r.int("id")
		if err != nil {
			return err
		}
		login := r.str(loginCol)
		if login == "" {
			return errors.New(errors.ErrCodeMalformedRow, "empty login")
		}
		oid := OwnerID{Kind: kind, Num: id}
		if _, dup := l.owners[oid]; dup {
			return errors.New(errors.ErrCodeMalformedRow, "duplicate owner %s", oid)
		}
		l.owners[oid] = &Owner{ID: oid, Login: login, Name: r.str("name"), Avatar: r.str(avatarCol)}
		return nil
	}
}

func (l *loader) pairRow(dst *[]idPair, valueCol string) rowFunc {
	return func(r row) error {
		crateID, err := r.int("crate_id")
		if err != nil {
			return err
		}
		v, err := r.int(valueCol)
		if err != nil {
			return err
		}
		if ok, err := l.admit(crateID); !ok {
			return err
		}
		*dst = append(*dst, idPair{crateID: crateID, value: v, line: r.line})
		return nil
	}
}

// link builds the store from buffered rows. Rows referencing unknown crates
// or duplicating an earlier row are skipped; rows belonging to crates the
// filter rejected are dropped silently.
func (l *loader) link() *Store {
	s := &Store{
		packages: make(map[string]*Package),
		versions: make(map[versionKey]*Version),
		owners:   make(map[OwnerID]*Owner),
	}
	known := l.known
	byID := make(map[int64]*Package)

	for _, c := range l.crates {
		if _, dup := s.packages[c.name]; dup {
			l.skip(sectionCrates, c.line, errors.New(errors.ErrCodeMalformedRow, "duplicate crate name %q", c.name))
			continue
		}
		p := &Package{Name: c.name, Description: c.description, Downloads: c.downloads, id: c.id}
		s.packages[c.name] = p
		byID[c.id] = p
	}

	versionByID := make(map[int64]*Version)
	summed := make(map[*Package]int64)
	for _, v := range l.vers {
		if !known[v.crateID] {
			l.skip(sectionVersions, v.line, errors.New(errors.ErrCodeMalformedRow, "unknown crate id %d", v.crateID))
			continue
		}
		p := byID[v.crateID]
		if p == nil {
			continue
		}
		key := versionKey{p.Name, v.num}
		if _, dup := s.versions[key]; dup {
			l.skip(sectionVersions, v.line, errors.New(errors.ErrCodeMalformedRow, "duplicate version %s@%s", p.Name, v.num))
			continue
		}
		ver := &Version{
			Package: p.Name, Num: v.num, CreatedAt: v.createdAt,
			Downloads: v.downloads, Yanked: v.yanked, License: v.license, id: v.id,
		}
		s.versions[key] = ver
		versionByID[v.id] = ver
		p.Versions = append(p.Versions, ver)
		summed[p] += v.downloads
	}
	for _, p := range s.packages {
		sort.SliceStable(p.Versions, func(i, j int) bool {
			return p.Versions[i].CreatedAt.Before(p.Versions[j].CreatedAt)
		})
	}

	for _, lk := range l.links {
		if !known[lk.crateID] {
			l.skip(sectionCrateOwners, lk.line, errors.New(errors.ErrCodeMalformedRow, "unknown crate id %d", lk.crateID))
			continue
		}
		p := byID[lk.crateID]
		if p == nil {
			continue
		}
		o := l.owners[lk.owner]
		if o == nil {
			l.skip(sectionCrateOwners, lk.line, errors.New(errors.ErrCodeMalformedRow, "unknown owner %s", lk.owner))
			continue
		}
		if hasOwner(p, o.ID) {
			continue
		}
		p.Owners = append(p.Owners, o)
		s.owners[o.ID] = o
	}

	for _, d := range l.defs {
		p := byID[d.crateID]
		if p == nil {
			continue
		}
		if v := versionByID[d.value]; v != nil && v.Package == p.Name {
			p.DefaultVersion = v.Num
		}
	}

	// crate_downloads.csv is authoritative when present; older dumps carry
	// the total in crates.csv, and as a last resort versions are summed.
	hasTotals := len(l.dls) > 0
	for _, d := range l.dls {
		if p := byID[d.crateID]; p != nil {
			p.Downloads = d.value
		}
	}
	if !hasTotals {
		for p, n := range summed {
			if p.Downloads == 0 {
				p.Downloads = n
			}
		}
	}

	s.stats = Stats{
		Sections: l.stats,
		Packages: len(s.packages),
		Versions: len(s.versions),
		Owners:   len(s.owners),
	}
	return s
}

func hasOwner(p *Package, id OwnerID) bool {
	for _, o := range p.Owners {
		if o.ID == id {
			return true
		}
	}
	return false
}

func (l *loader) summarize() {
	if l.opts.Logger == nil {
		return
	}
	for _, name := range sortedKeys(l.stats) {
		if st := l.stats[name]; st.Skipped > 0 {
			l.opts.Logger.Warn("skipped malformed dump rows", "section", name, "skipped", st.Skipped, "rows", st.Rows)
		}
	}
}

func sortedKeys(m map[string]SectionStats) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
