package config

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Source identifies one monitored camera.
type Source struct {
	// Slug is the short name, e.g. "hamduck".
	Slug string `json:"slug"`
	// Name is the English display name.
	Name string `json:"name"`
	// LocalName is the Korean display name.
	LocalName string `json:"local_name"`
	// ID is the source id sent upstream, e.g. "hamduck_camera_01".
	ID string `json:"id"`
	// Locator is a video file path, a device index or a stream URL.
	Locator string `json:"locator"`
}

type catalogEntry struct {
	slug, name, localName, shortName string
}

var catalog = []catalogEntry{
	{slug: "hamduck", name: "Hamduck Beach", localName: "함덕해변", shortName: "함덕"},
	{slug: "iho", name: "Iho Beach", localName: "이호해변", shortName: "이호"},
	{slug: "walljeonglee", name: "Walljeonglee Beach", localName: "월정리해변", shortName: "월정리"},
}

// Slugs returns the short names of the built-in sources in catalog order.
func Slugs() []string {
	slugs := make([]string, len(catalog))
	for i, e := range catalog {
		slugs[i] = e.slug
	}
	return slugs
}

// DisplayName returns the Korean display name for a short name, or the short
// name itself when it is not in the catalog.
func DisplayName(slug string) string {
	for _, e := range catalog {
		if e.slug == slug {
			return e.localName
		}
	}
	return slug
}

// ResolveSlug maps a beach name given as a slug, a Korean short or display
// name, or an English display name to its slug. Unknown names are lowercased
// and returned as is.
func ResolveSlug(name string) string {
	name = strings.TrimSpace(name)
	for _, e := range catalog {
		if strings.EqualFold(name, e.slug) || strings.EqualFold(name, e.name) ||
			name == e.localName || name == e.shortName {
			return e.slug
		}
	}
	return strings.ToLower(name)
}

// DefaultSources returns the built-in sources with video files in dir named
// <slug>_beach.mp4.
func DefaultSources(dir string) []Source {
	sources := make([]Source, len(catalog))
	for i, e := range catalog {
		sources[i] = e.source(dir)
	}
	return sources
}

func (e catalogEntry) source(dir string) Source {
	return Source{
		Slug:      e.slug,
		Name:      e.name,
		LocalName: e.localName,
		ID:        e.slug + "_camera_01",
		Locator:   filepath.Join(dir, e.slug+"_beach.mp4"),
	}
}

// SelectSources picks catalog sources by slug. An empty selection returns the
// whole catalog. Locators can be overridden per slug through lookup, which is
// called with SOURCE_<SLUG>_URL.
//
// Arguments:
//   - dir: The video directory for default locators.
//   - selection: Comma separated slugs, e.g. "hamduck,iho".
//   - lookup: Returns an override locator for an env key, or "".
//
// Returns:
//   - []Source: The selected sources.
//   - error: An error naming an unknown slug.
func SelectSources(dir, selection string, lookup func(string) string) ([]Source, error) {
	var sources []Source
	if strings.TrimSpace(selection) == "" {
		sources = DefaultSources(dir)
	} else {
		for _, slug := range strings.Split(selection, ",") {
			slug = strings.ToLower(strings.TrimSpace(slug))
			if slug == "" {
				continue
			}
			found := false
			for _, e := range catalog {
				if e.slug == slug {
					sources = append(sources, e.source(dir))
					found = true
					break
				}
			}
			if !found {
				return nil, errors.Errorf("unknown source %q, expected one of %s", slug, strings.Join(Slugs(), ", "))
			}
		}
	}

	if lookup != nil {
		for i := range sources {
			key := "SOURCE_" + strings.ToUpper(sources[i].Slug) + "_URL"
			if v := lookup(key); v != "" {
				sources[i].Locator = v
			}
		}
	}
	return sources, nil
}
