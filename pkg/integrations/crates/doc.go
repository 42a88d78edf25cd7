// Package crates provides an HTTP client for the crates.io API.
//
// # Overview
//
// [Client] is the remote metadata source used when the local dump does not
// know a crate or version, typically because the crate was published after
// the dump was taken.
//
//	client := crates.NewClient("")
//	rec, err := client.Lookup(ctx, "serde", "")  // "" = default version
//
// Two endpoints are used: /crates/{name} for the crate and its versions, and
// /crates/{name}/owners for owner names and avatars.
//
// # User-Agent
//
// crates.io rejects anonymous API traffic, so every request carries
// [buildinfo.UserAgent].
package crates
