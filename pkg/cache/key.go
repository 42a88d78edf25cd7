package cache

import "github.com/cespare/xxhash/v2"

// Key identifies one rendered image: the crate, the concrete version that
// was resolved and the revision of the template that produced the document.
type Key struct {
	Name     string
	Version  string
	Revision string
}

// String returns "name@version#revision".
func (k Key) String() string {
	return k.Name + "@" + k.Version + "#" + k.Revision
}

// ETag returns a strong entity tag for HTTP responses.
func (k Key) ETag() string {
	return `"` + Hash([]byte(k.String()))[:16] + `"`
}

func (k Key) shard() uint64 {
	return xxhash.Sum64String(k.String()) % shardCount
}
