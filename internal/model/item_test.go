package model

import (
	"errors"
	"slices"
	"testing"
)

func TestDraftNormalizeDefaults(t *testing.T) {
	d := Draft{Name: "  Submariner ", Brand: "Rolex", GLBSrc: "a.glb"}
	d.Normalize()

	if d.Name != "Submariner" {
		t.Errorf("expected trimmed name, got %q", d.Name)
	}
	if d.Category != DefaultCategory {
		t.Errorf("expected category %q, got %q", DefaultCategory, d.Category)
	}
	if d.Type != ItemTypeSculpture {
		t.Errorf("expected type %q, got %q", ItemTypeSculpture, d.Type)
	}
	if !slices.Contains(Palette, d.Color) {
		t.Errorf("expected palette color, got %q", d.Color)
	}
}

func TestDraftNormalizeKeepsColor(t *testing.T) {
	d := Draft{Name: "n", Brand: "b", GLBSrc: "a.glb", Color: "rebeccapurple"}
	d.Normalize()
	if d.Color != "rebeccapurple" {
		t.Errorf("expected color to be kept, got %q", d.Color)
	}
}

func TestDraftValidate(t *testing.T) {
	valid := Draft{Name: "n", Brand: "b", Category: "c", GLBSrc: "a.glb", Type: ItemTypeWatch}

	tests := []struct {
		name    string
		mutate  func(d *Draft)
		wantErr bool
	}{
		{"valid", func(d *Draft) {}, false},
		{"missing name", func(d *Draft) { d.Name = "" }, true},
		{"missing brand", func(d *Draft) { d.Brand = "" }, true},
		{"missing category", func(d *Draft) { d.Category = "" }, true},
		{"missing model", func(d *Draft) { d.GLBSrc = "" }, true},
		{"unknown type", func(d *Draft) { d.Type = "spaceship" }, true},
	}

	for _, tt := range tests {
		d := valid
		tt.mutate(&d)
		err := d.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidDraft) {
			t.Errorf("%s: expected ErrInvalidDraft, got %v", tt.name, err)
		}
	}
}

func TestItemTypeValid(t *testing.T) {
	for _, typ := range ItemTypes {
		if !typ.Valid() {
			t.Errorf("expected %q to be valid", typ)
		}
	}
	if ItemType("WATCH").Valid() {
		t.Error("item types are case-sensitive")
	}
}

func TestCaptureFilename(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Vintage Submariner", "objectory_vintage_submariner.webm"},
		{"  Air   Max\t90 ", "objectory_air_max_90.webm"},
		{"Leica", "objectory_leica.webm"},
	}
	for _, tt := range tests {
		if got := CaptureFilename(tt.name); got != tt.want {
			t.Errorf("CaptureFilename(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestShareIntentURL(t *testing.T) {
	got := ShareIntentURL(ShareText("Air Max"))
	want := "https://twitter.com/intent/tweet?text=Check+out+my+collection+on+Objectory%3A+Air+Max+%233D+%23Objectory"
	if got != want {
		t.Errorf("ShareIntentURL = %q, want %q", got, want)
	}
}
