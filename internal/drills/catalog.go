package drills

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// ErrNoSuchDrill is returned when a slug is not present in the catalog.
var ErrNoSuchDrill = fmt.Errorf("no such drill")

// Catalog is the read-only drill content provider. The slug order of the
// catalog file is the order users progress through drills, so it is preserved
// here and exposed to the progress projection.
type Catalog struct {
	drills map[string]Drill
	order  []string
}

// NewCatalog builds a catalog from an ordered drill list.
func NewCatalog(list []Drill) (*Catalog, error) {
	c := &Catalog{drills: make(map[string]Drill, len(list))}
	for _, d := range list {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("invalid drill: %w", err)
		}
		if _, dup := c.drills[d.Slug]; dup {
			return nil, fmt.Errorf("duplicate drill slug %s", d.Slug)
		}
		c.drills[d.Slug] = d
		c.order = append(c.order, d.Slug)
	}
	if len(c.order) == 0 {
		return nil, fmt.Errorf("catalog contains no drills")
	}
	return c, nil
}

// catalogFile is the on-disk shape: an ordered drill list plus translations.
type catalogFile struct {
	Drills       []Drill                      `json:"drills"`
	Translations map[string]map[string]string `json:"translations,omitempty"`
}

// LoadCatalog reads a catalog JSON file and returns the catalog together with
// a localizer for its translations.
func LoadCatalog(path string) (*Catalog, *Localizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("Catalog load failed", "error", err, "path", path)
		return nil, nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		slog.Error("Catalog parse failed", "error", err, "path", path)
		return nil, nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}
	c, err := NewCatalog(file.Drills)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Catalog loaded", "path", path, "drills", len(c.order))
	return c, NewLocalizer(file.Translations), nil
}

// Get returns the drill with the given slug.
func (c *Catalog) Get(slug string) (Drill, error) {
	d, ok := c.drills[slug]
	if !ok {
		return Drill{}, fmt.Errorf("%w: %s", ErrNoSuchDrill, slug)
	}
	return d, nil
}

// First returns the catalog's opening drill.
func (c *Catalog) First() Drill {
	return c.drills[c.order[0]]
}

// Slugs returns all drill slugs in catalog order. The returned slice is a
// copy.
func (c *Catalog) Slugs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}
