package resolve

import "github.com/matzehuels/ogloc/pkg/dump"

// Source names where a record came from.
type Source string

const (
	SourceDump   Source = "dump"
	SourceRemote Source = "remote"
)

// Owner is the display identity of a crate owner.
type Owner struct {
	Login  string
	Name   string // May be empty
	Avatar string // Avatar URL; may be empty
	Kind   string // "user" or "team"
}

// DisplayName returns the name if set and the login otherwise.
func (o Owner) DisplayName() string {
	if o.Name != "" {
		return o.Name
	}
	return o.Login
}

// Record is the resolved metadata for exactly one (crate, version). Version
// is always concrete, never "latest".
type Record struct {
	Name             string
	Version          string
	Description      string
	Downloads        int64 // All versions
	VersionDownloads int64
	License          string
	Owners           []Owner
	Source           Source
}

// RemoteRecord is what a RemoteSource returns. It carries the same fields as
// Record without the source tag.
type RemoteRecord struct {
	Name             string
	Version          string
	Description      string
	Downloads        int64
	VersionDownloads int64
	License          string
	Owners           []Owner
}

func fromDump(p *dump.Package, v *dump.Version) *Record {
	owners := make([]Owner, 0, len(p.Owners))
	for _, o := range p.Owners {
		owners = append(owners, Owner{
			Login:  o.Login,
			Name:   o.Name,
			Avatar: o.Avatar,
			Kind:   o.Kind().String(),
		})
	}
	return &Record{
		Name:             p.Name,
		Version:          v.Num,
		Description:      p.Description,
		Downloads:        p.Downloads,
		VersionDownloads: v.Downloads,
		License:          v.License,
		Owners:           owners,
		Source:           SourceDump,
	}
}

func fromRemote(r *RemoteRecord) *Record {
	return &Record{
		Name:             r.Name,
		Version:          r.Version,
		Description:      r.Description,
		Downloads:        r.Downloads,
		VersionDownloads: r.VersionDownloads,
		License:          r.License,
		Owners:           append([]Owner(nil), r.Owners...),
		Source:           SourceRemote,
	}
}
