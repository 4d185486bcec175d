package model

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
)

// ItemType is a presentation hint for the kind of object an item is.
type ItemType string

// Item types.
const (
	ItemTypeWatch     ItemType = "watch"
	ItemTypeSneaker   ItemType = "sneaker"
	ItemTypeCamera    ItemType = "camera"
	ItemTypeSculpture ItemType = "sculpture"
)

// ItemTypes lists the item types in display order.
var ItemTypes = []ItemType{ItemTypeWatch, ItemTypeSneaker, ItemTypeCamera, ItemTypeSculpture}

// Valid reports whether t is one of the known item types.
func (t ItemType) Valid() bool {
	switch t {
	case ItemTypeWatch, ItemTypeSneaker, ItemTypeCamera, ItemTypeSculpture:
		return true
	}
	return false
}

// DefaultCategory is used when an item is added without a category.
const DefaultCategory = "General"

// DateLayout is the calendar date format of Item.Date.
const DateLayout = "2006-01-02"

// Palette is the set of display colors handed out to new items.
var Palette = []string{"#8B4513", "#E5E5E5", "#1A1A1A", "#4A90E2", "#FF6B6B", "#FAD02E"}

// RandomColor returns a color from Palette.
func RandomColor() string {
	return Palette[rand.IntN(len(Palette))]
}

// ErrInvalidDraft is wrapped by every draft validation error.
var ErrInvalidDraft = errors.New("invalid item")

// Item is a cataloged physical object and its 3D model.
type Item struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Brand       string   `json:"brand"`
	Type        ItemType `json:"type"`
	Category    string   `json:"category"`
	Color       string   `json:"color"`
	Date        string   `json:"date"`
	GLBSrc      string   `json:"glbSrc"`
	Poster      string   `json:"poster,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Draft holds the user-supplied fields of a new item.
type Draft struct {
	Name        string   `json:"name"`
	Brand       string   `json:"brand"`
	Type        ItemType `json:"type"`
	Category    string   `json:"category"`
	Color       string   `json:"color"`
	GLBSrc      string   `json:"glbSrc"`
	Poster      string   `json:"poster,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Normalize trims the draft's text fields and applies defaults for
// category, type and color.
func (d *Draft) Normalize() {
	d.Name = strings.TrimSpace(d.Name)
	d.Brand = strings.TrimSpace(d.Brand)
	d.Category = strings.TrimSpace(d.Category)
	d.GLBSrc = strings.TrimSpace(d.GLBSrc)
	d.Poster = strings.TrimSpace(d.Poster)
	d.Color = strings.TrimSpace(d.Color)
	d.Type = ItemType(strings.ToLower(strings.TrimSpace(string(d.Type))))

	if d.Category == "" {
		d.Category = DefaultCategory
	}
	if d.Type == "" {
		d.Type = ItemTypeSculpture
	}
	if d.Color == "" {
		d.Color = RandomColor()
	}
}

// Validate checks that all required fields are present.
func (d Draft) Validate() error {
	switch {
	case d.Name == "":
		return fmt.Errorf("%w: name required", ErrInvalidDraft)
	case d.Brand == "":
		return fmt.Errorf("%w: brand required", ErrInvalidDraft)
	case d.Category == "":
		return fmt.Errorf("%w: category required", ErrInvalidDraft)
	case d.GLBSrc == "":
		return fmt.Errorf("%w: model source required", ErrInvalidDraft)
	case !d.Type.Valid():
		return fmt.Errorf("%w: unknown type %q", ErrInvalidDraft, d.Type)
	}
	return nil
}

// DefaultDescription is the description given to items registered without one.
func DefaultDescription(name, brand, category string) string {
	return fmt.Sprintf("A precision digital twin of %s by %s, categorized under %s.", name, brand, category)
}

var whitespace = regexp.MustCompile(`\s+`)

// FileSlug lower-cases name and collapses whitespace runs to underscores.
func FileSlug(name string) string {
	return whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
}
