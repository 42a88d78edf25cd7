// Package dump builds the in-memory crate index from a crates.io database dump.
//
// # Overview
//
// crates.io publishes a nightly db-dump: a tar.gz archive of CSV exports, one
// per table. [Load] reads the sections ogloc needs in a single pass over the
// archive and links them into a [Store]:
//
//   - crates.csv: crate identity and description
//   - versions.csv: published versions, yanked flag, per-version downloads
//   - crate_owners.csv: links between crates and their owners
//   - users.csv, teams.csv: owner display data and avatars
//   - default_versions.csv, crate_downloads.csv: optional extras
//
// # Failure Model
//
// A malformed row is skipped, logged and counted in [Stats]; the load goes on.
// A required section that is missing, unreadable or lacks a required column
// fails the whole load with [errors.ErrCodeMissingSection].
//
// # Immutability
//
// A Store is built once and never mutated afterwards. All lookups hand out
// pointers into the shared index; callers must treat them as read-only. Because
// nothing writes after [Load] returns, a Store is safe for concurrent use
// without locking.
//
// # Latest Version
//
// [Package.Latest] picks the version rendered when no version is requested:
// the highest semver precedence among non-yanked versions. Numbers that do not
// parse as semver only compete when nothing parses, ordered by publish time.
// Equal precedence breaks by newest publish time, then by the greater number
// string, so the choice is deterministic for any input.
package dump
