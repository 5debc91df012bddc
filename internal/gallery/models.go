package gallery

// Artist credits one or more artworks.
type Artist struct {
	Username string
	// Twitter is the artist's handle without "@"; empty when unknown.
	Twitter string
}

// TwitterURL returns the artist's profile link, or "" when no handle is known.
func (a Artist) TwitterURL() string {
	if a.Twitter == "" {
		return ""
	}
	return "https://twitter.com/" + a.Twitter
}

// Artwork is one image, relative to the image directory.
type Artwork struct {
	Path     string
	ArtistID int
}

// artistConfig and catalogFile mirror the TOML catalog layout:
//
//	[artists.someone]
//	twitter = "someone"
//	artworks = ["someone/1.png", "someone/2.jpg"]
type artistConfig struct {
	Twitter  string   `toml:"twitter"`
	Artworks []string `toml:"artworks"`
}

type catalogFile struct {
	Artists map[string]artistConfig `toml:"artists"`
}
