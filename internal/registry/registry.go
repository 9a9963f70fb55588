package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/signalindex/signalindex/internal/source"
)

// Entry is one artist record in artists.json. Handle fields are
// optional; an empty handle means the matching source skips the artist.
type Entry struct {
	Name             string `json:"name"`
	Category         string `json:"category"`
	Twitter          string `json:"twitter,omitempty"`
	YouTubeChannelID string `json:"youtube_channel_id,omitempty"`
	Lastfm           string `json:"lastfm,omitempty"`
	Active           bool   `json:"active"`
}

type document struct {
	Artists []Entry `json:"artists"`
}

// Registry holds the tracked-artist list. The pipeline reads it; edits
// go through Add/Toggle/Save (or any external editor) and take effect
// on the next invocation.
type Registry struct {
	path    string
	entries []Entry
}

// Load reads artists.json. A missing file is an error for the pipeline;
// callers that want a starter file should use LoadOrCreate.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading registry: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing registry %s: %w", path, err)
	}
	for i, e := range doc.Artists {
		if e.Name == "" {
			return nil, fmt.Errorf("registry %s: artist %d has no name", path, i)
		}
	}
	return &Registry{path: path, entries: doc.Artists}, nil
}

// LoadOrCreate loads the registry, writing a single-artist starter file
// first if none exists.
func LoadOrCreate(path string) (*Registry, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		starter := &Registry{path: path, entries: []Entry{{
			Name:             "NewJeans",
			Category:         "K-pop",
			Twitter:          "newjeans_official",
			YouTubeChannelID: "UCdZlB77W6p-qx08FaZG_0kw",
			Active:           true,
		}}}
		if err := starter.Save(); err != nil {
			return nil, err
		}
		return starter, nil
	}
	return Load(path)
}

// Path returns the backing file path.
func (r *Registry) Path() string { return r.path }

// All returns every entry, active or not.
func (r *Registry) All() []Entry { return r.entries }

// Active returns active artists in file order, converted for collectors.
func (r *Registry) Active() []source.Artist {
	var out []source.Artist
	for _, e := range r.entries {
		if !e.Active {
			continue
		}
		out = append(out, e.toArtist())
	}
	return out
}

func (e Entry) toArtist() source.Artist {
	handles := map[source.Name]string{}
	if e.Twitter != "" {
		handles[source.X] = e.Twitter
	}
	if e.YouTubeChannelID != "" {
		handles[source.YouTube] = e.YouTubeChannelID
	}
	if e.Lastfm != "" {
		handles[source.Lastfm] = e.Lastfm
	} else {
		// Last.fm, charts, and sales match on display name.
		handles[source.Lastfm] = e.Name
	}
	handles[source.Charts] = e.Name
	handles[source.Sales] = e.Name
	return source.Artist{
		Name:     e.Name,
		Category: e.Category,
		Handles:  handles,
		Active:   e.Active,
	}
}

// Add appends a new artist. Duplicate names are rejected.
func (r *Registry) Add(e Entry) error {
	if e.Name == "" {
		return fmt.Errorf("artist name is required")
	}
	for _, existing := range r.entries {
		if existing.Name == e.Name {
			return fmt.Errorf("artist %q already exists", e.Name)
		}
	}
	e.Active = true
	r.entries = append(r.entries, e)
	return nil
}

// Toggle sets an artist's active flag. Inactive artists stay in the
// file but are excluded from every collection run.
func (r *Registry) Toggle(name string, active bool) error {
	for i := range r.entries {
		if r.entries[i].Name == name {
			r.entries[i].Active = active
			return nil
		}
	}
	return fmt.Errorf("artist %q not found", name)
}

// Save writes the registry back to disk via a temp file and rename, so
// a concurrent reader sees either the old or the new document.
func (r *Registry) Save() error {
	doc := document{Artists: r.entries}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating registry directory: %w", err)
		}
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing registry: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing registry: %w", err)
	}
	return nil
}
