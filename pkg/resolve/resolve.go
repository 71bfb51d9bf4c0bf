// Package resolve narrows an aggregated package list down to the versions that
// can be installed on a host. Every function here is pure.
package resolve

import (
	"slices"
	"strings"

	"github.com/glorpus-work/plugd/pkg/model"
	"github.com/glorpus-work/plugd/pkg/platform"
	"github.com/hashicorp/go-version"
)

// FilterByIdentity keeps packages whose guid equals id when id is set,
// otherwise packages whose name equals name ignoring case. Order is preserved.
func FilterByIdentity(candidates []model.PackageDescriptor, name, id string) []model.PackageDescriptor {
	out := make([]model.PackageDescriptor, 0)
	for _, p := range candidates {
		if matchesIdentity(p, name, id) {
			out = append(out, p)
		}
	}
	return out
}

// FilterByRepository keeps packages published by repositoryURL, compared ignoring
// case. An empty URL keeps everything.
func FilterByRepository(candidates []model.PackageDescriptor, repositoryURL string) []model.PackageDescriptor {
	repositoryURL = strings.TrimSpace(repositoryURL)
	out := make([]model.PackageDescriptor, 0, len(candidates))
	for _, p := range candidates {
		if repositoryURL == "" || strings.EqualFold(strings.TrimSpace(p.RepositoryURL), repositoryURL) {
			out = append(out, p)
		}
	}
	return out
}

// SelectCompatibleVersions returns the versions of the matching packages that the
// host can run, newest first. Equal versions keep their input order, so a
// repository listed earlier wins ties. When explicitVersion is set only versions
// semantically equal to it are kept; an unparseable explicitVersion matches
// nothing. Versions that cannot be parsed are never returned. A repository
// contributes at most one entry per version; the first in manifest order wins.
func SelectCompatibleVersions(
	candidates []model.PackageDescriptor,
	name, id, explicitVersion string,
	host platform.Host,
) []model.VersionDescriptor {
	var wanted *version.Version
	if explicitVersion != "" {
		parsed, err := version.NewVersion(explicitVersion)
		if err != nil {
			return []model.VersionDescriptor{}
		}
		wanted = parsed
	}

	type entry struct {
		desc   model.VersionDescriptor
		parsed *version.Version
	}

	entries := make([]entry, 0)
	for _, p := range FilterByIdentity(candidates, name, id) {
		for _, v := range p.Versions {
			parsed := v.GetVersion()
			if parsed == nil {
				continue
			}
			if !v.CompatibleWith(host) {
				continue
			}
			if wanted != nil && !parsed.Equal(wanted) {
				continue
			}
			if v.PackageName == "" {
				v.PackageName = p.Name
				v.PackageID = p.ID
				v.RepositoryURL = p.RepositoryURL
			}
			entries = append(entries, entry{desc: v, parsed: parsed})
		}
	}

	slices.SortStableFunc(entries, func(a, b entry) int {
		return b.parsed.Compare(a.parsed)
	})

	out := make([]model.VersionDescriptor, 0, len(entries))
	var seen map[string]struct{}
	for i, e := range entries {
		if i == 0 || !e.parsed.Equal(entries[i-1].parsed) {
			seen = make(map[string]struct{})
		}
		repo := strings.ToLower(strings.TrimSpace(e.desc.RepositoryURL))
		if _, dup := seen[repo]; dup {
			continue
		}
		seen[repo] = struct{}{}
		out = append(out, e.desc)
	}
	return out
}

func matchesIdentity(p model.PackageDescriptor, name, id string) bool {
	if id != "" {
		return strings.EqualFold(strings.TrimSpace(p.ID), strings.TrimSpace(id))
	}
	return strings.EqualFold(strings.TrimSpace(p.Name), strings.TrimSpace(name))
}
