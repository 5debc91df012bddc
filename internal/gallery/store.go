package gallery

import (
	"fmt"
	"math/rand/v2"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Catalog is the read-only abstraction over the artwork metadata.
// The site only needs a random pick; implementations can be in-memory or remote.
type Catalog interface {
	Random() (Artwork, Artist, bool)
	Len() int
}

// InMemoryCatalog is an immutable in-memory Catalog, safe for concurrent use.
type InMemoryCatalog struct {
	artworks []Artwork
	artists  []Artist
	intn     func(n int) int
}

// NewInMemoryCatalog builds a catalog from artists and their artworks.
// Artwork.ArtistID indexes into artists; artworks pointing elsewhere are dropped.
func NewInMemoryCatalog(artists []Artist, artworks []Artwork) *InMemoryCatalog {
	kept := make([]Artwork, 0, len(artworks))
	for _, a := range artworks {
		if a.ArtistID >= 0 && a.ArtistID < len(artists) {
			kept = append(kept, a)
		}
	}
	return &InMemoryCatalog{artworks: kept, artists: artists, intn: rand.IntN}
}

// Random implements Catalog.Random. ok is false for an empty catalog.
func (c *InMemoryCatalog) Random() (Artwork, Artist, bool) {
	if len(c.artworks) == 0 {
		return Artwork{}, Artist{}, false
	}
	art := c.artworks[c.intn(len(c.artworks))]
	return art, c.artists[art.ArtistID], true
}

// Len implements Catalog.Len.
func (c *InMemoryCatalog) Len() int {
	return len(c.artworks)
}

// Artists returns the catalog's artists ordered by username.
func (c *InMemoryCatalog) Artists() []Artist {
	return append([]Artist(nil), c.artists...)
}

// LoadCatalog reads a TOML catalog file.
func LoadCatalog(path string) (*InMemoryCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read art catalog %s: %w", path, err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse art catalog %s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog decodes a TOML catalog. Artists are ordered by username so the
// result does not depend on map iteration order.
func ParseCatalog(data []byte) (*InMemoryCatalog, error) {
	var file catalogFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(file.Artists))
	for name := range file.Artists {
		names = append(names, name)
	}
	sort.Strings(names)

	artists := make([]Artist, 0, len(names))
	var artworks []Artwork
	for id, name := range names {
		cfg := file.Artists[name]
		artists = append(artists, Artist{
			Username: name,
			Twitter:  strings.TrimPrefix(cfg.Twitter, "@"),
		})
		for _, p := range cfg.Artworks {
			if p = strings.TrimSpace(p); p == "" {
				continue
			}
			artworks = append(artworks, Artwork{Path: p, ArtistID: id})
		}
	}

	return NewInMemoryCatalog(artists, artworks), nil
}
