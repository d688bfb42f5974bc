package schema

import (
	"fmt"
	"strings"
)

// TagEdge is a row of the TagStudio tag_parents table.
type TagEdge struct {
	Parent int64 `json:"parent_id"`
	Child  int64 `json:"child_id"`
}

// Validate rejects self edges and unset ids.
func (e TagEdge) Validate() error {
	if e.Parent <= 0 || e.Child <= 0 {
		return fmt.Errorf("edge ids must be positive, got %d -> %d", e.Parent, e.Child)
	}
	if e.Parent == e.Child {
		return fmt.Errorf("self edge on tag %d", e.Parent)
	}
	return nil
}

// Color references a TagStudio color by namespace and slug.
type Color struct {
	Namespace string `json:"namespace" yaml:"namespace"`
	Slug      string `json:"slug" yaml:"slug"`
}

// ParseColor parses "namespace,slug".
func ParseColor(s string) (Color, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Color{}, fmt.Errorf("invalid color %q: expected namespace,slug", s)
	}
	c := Color{
		Namespace: strings.TrimSpace(parts[0]),
		Slug:      strings.TrimSpace(parts[1]),
	}
	if c.Namespace == "" || c.Slug == "" {
		return Color{}, fmt.Errorf("invalid color %q: namespace and slug cannot be empty", s)
	}
	return c, nil
}

// String returns the "namespace,slug" form.
func (c Color) String() string {
	return c.Namespace + "," + c.Slug
}

// Category is one of the five groups Danbooru sorts tags into.
type Category string

const (
	CategoryArtist    Category = "Artist"
	CategoryCopyright Category = "Copyright"
	CategoryCharacter Category = "Character"
	CategoryGeneral   Category = "General"
	CategoryMeta      Category = "Meta"
)

// Categories lists every category in the order tags are attached.
var Categories = []Category{
	CategoryArtist,
	CategoryCopyright,
	CategoryCharacter,
	CategoryGeneral,
	CategoryMeta,
}

// CategoryColors are the colors category tags are created with.
var CategoryColors = map[Category]Color{
	CategoryArtist:    {Namespace: "tagstudio-neon", Slug: "neon-red-orange"},
	CategoryCopyright: {Namespace: "tagstudio-neon", Slug: "neon-indigo"},
	CategoryCharacter: {Namespace: "tagstudio-neon", Slug: "neon-green"},
	CategoryGeneral:   {Namespace: "tagstudio-neon", Slug: "neon-blue"},
	CategoryMeta:      {Namespace: "tagstudio-neon", Slug: "neon-yellow"},
}

// DefaultTagColors are the colors new tags get per category unless
// configured otherwise.
var DefaultTagColors = map[Category]Color{
	CategoryArtist:    {Namespace: "tagstudio-standard", Slug: "red-orange"},
	CategoryCopyright: {Namespace: "tagstudio-standard", Slug: "indigo"},
	CategoryCharacter: {Namespace: "tagstudio-standard", Slug: "green"},
	CategoryGeneral:   {Namespace: "tagstudio-standard", Slug: "blue"},
	CategoryMeta:      {Namespace: "tagstudio-standard", Slug: "yellow"},
}

// PostData holds the tags a downloaded post carries, grouped by category.
type PostData struct {
	PostID   int64
	FileName string
	Tags     map[Category][]string
	Rating   string
}

// TagGroups returns the non-empty tag groups in attach order. The rating is
// reported as a "rating:<r>" tag in the Meta group after the meta tags.
func (p *PostData) TagGroups() []TagGroup {
	var groups []TagGroup
	for _, cat := range Categories {
		tags := p.Tags[cat]
		if len(tags) == 0 {
			continue
		}
		groups = append(groups, TagGroup{Category: cat, Tags: tags})
	}
	if p.Rating != "" {
		groups = append(groups, TagGroup{
			Category: CategoryMeta,
			Tags:     []string{"rating:" + p.Rating},
		})
	}
	return groups
}

// TagGroup is a set of tags of one category attached to one file together.
type TagGroup struct {
	Category Category
	Tags     []string
}

// SplitTagString splits a whitespace separated Danbooru tag string.
func SplitTagString(s string) []string {
	return strings.Fields(s)
}
