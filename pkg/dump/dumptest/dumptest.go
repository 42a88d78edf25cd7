// Package dumptest builds in-memory crates.io db-dump archives for tests.
package dumptest

import (
	"archive/tar"
	"bytes"
	"maps"
	"slices"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

// Sections maps section file names (e.g. "crates.csv") to CSV bodies that
// include the header line.
type Sections map[string]string

// Clone returns a copy that can be modified without affecting s.
func (s Sections) Clone() Sections { return maps.Clone(s) }

// Archive builds a gzip-compressed tar with every section placed under a
// dated data directory, as in real dumps.
func Archive(t testing.TB, sections Sections) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	for _, name := range slices.Sorted(maps.Keys(sections)) {
		body := sections[name]
		hdr := &tar.Header{
			Name:     "2024-01-01-020017/data/" + name,
			Mode:     0o644,
			Size:     int64(len(body)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header: %v", err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("write body: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}

// CSV joins lines into a section body.
func CSV(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

// Minimal is the smallest valid dump: crate "demo" with one version 1.0.0
// owned by user "alice".
func Minimal() Sections {
	return Sections{
		"crates.csv": CSV(
			"description,downloads,id,name",
			"A demo crate,42,1,demo",
		),
		"versions.csv": CSV(
			"crate_id,created_at,downloads,id,license,num,yanked",
			"1,2024-01-01 00:00:00.000000+00,42,10,MIT,1.0.0,f",
		),
		"crate_owners.csv": CSV(
			"crate_id,owner_id,owner_kind",
			"1,100,0",
		),
		"users.csv": CSV(
			"gh_avatar,gh_login,id,name",
			"https://avatars.githubusercontent.com/u/1?v=4,alice,100,Alice",
		),
		"teams.csv": CSV(
			"avatar,id,login,name",
		),
	}
}

// Demo has two crates: "demo" with three versions (one prerelease) owned by
// a user and a team, and "gone" whose only version is yanked.
func Demo() Sections {
	return Sections{
		"crates.csv": CSV(
			"created_at,description,documentation,downloads,homepage,id,max_upload_size,name,readme,repository,updated_at",
			`2020-01-01 00:00:00.000000+00,"A demo crate, with a comma",,0,,1,,demo,,,2024-01-01 00:00:00+00`,
			`2020-01-01 00:00:00.000000+00,Everything is yanked,,0,,2,,gone,,,2024-01-01 00:00:00+00`,
		),
		"versions.csv": CSV(
			"checksum,crate_id,crate_size,created_at,downloads,features,id,license,links,num,published_by,updated_at,yanked",
			"x,1,100,2021-01-01 00:00:00.000000+00,10,{},10,MIT,,1.0.0,,2021-01-01 00:00:00+00,f",
			"x,1,100,2022-01-01 00:00:00.000000+00,20,{},11,MIT,,1.1.0,,2022-01-01 00:00:00+00,f",
			"x,1,100,2023-01-01 00:00:00.000000+00,5,{},12,MIT,,2.0.0-beta.1,,2023-01-01 00:00:00+00,f",
			"x,2,100,2021-01-01 00:00:00.000000+00,1,{},20,Apache-2.0,,0.1.0,,2021-01-01 00:00:00+00,t",
		),
		"crate_owners.csv": CSV(
			"crate_id,created_at,created_by,owner_id,owner_kind",
			"1,2020-01-01 00:00:00+00,,100,0",
			"1,2020-01-01 00:00:00+00,,200,1",
			"2,2020-01-01 00:00:00+00,,100,0",
		),
		"users.csv": CSV(
			"gh_avatar,gh_id,gh_login,id,name",
			"https://avatars.githubusercontent.com/u/1?v=4,1,alice,100,Alice Liddell",
		),
		"teams.csv": CSV(
			"avatar,github_id,id,login,name,org_id",
			"https://avatars.githubusercontent.com/u/2?v=4,2,200,github:demo:core,Core,9",
		),
		"default_versions.csv": CSV(
			"crate_id,version_id",
			"1,11",
		),
	}
}
