package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func createTestJPEG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{255, 0, 0, 255})
		}
	}
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

func createTransparentPNG(w, h int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

func TestProcessPosterJPEG(t *testing.T) {
	result, err := ProcessPoster(bytes.NewReader(createTestJPEG(100, 80)), nil)
	if err != nil {
		t.Fatalf("ProcessPoster JPEG: %v", err)
	}
	if result.MIME != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %s", result.MIME)
	}
	if result.Width != 100 || result.Height != 80 {
		t.Errorf("expected 100x80, got %dx%d", result.Width, result.Height)
	}
	if len(result.Data) == 0 {
		t.Error("expected non-empty data")
	}
}

func TestProcessPosterFlattensTransparency(t *testing.T) {
	bg := ParseHexColor("#8B4513")
	result, err := ProcessPoster(bytes.NewReader(createTransparentPNG(40, 40)), bg)
	if err != nil {
		t.Fatalf("ProcessPoster PNG: %v", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(result.Data))
	if err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	r, g, b, _ := img.At(20, 20).RGBA()
	// JPEG is lossy; allow some drift.
	if diff(r>>8, 0x8B) > 8 || diff(g>>8, 0x45) > 8 || diff(b>>8, 0x13) > 8 {
		t.Errorf("expected background #8B4513, got %02x%02x%02x", r>>8, g>>8, b>>8)
	}
}

func diff(a uint32, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

func TestProcessPosterDownscale(t *testing.T) {
	result, err := ProcessPoster(bytes.NewReader(createTestJPEG(2560, 1280)), nil)
	if err != nil {
		t.Fatalf("ProcessPoster large image: %v", err)
	}
	if result.Width != MaxDimension || result.Height != MaxDimension/2 {
		t.Errorf("expected %dx%d, got %dx%d", MaxDimension, MaxDimension/2, result.Width, result.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(result.Data))
	if err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if img.Bounds().Dx() > MaxDimension || img.Bounds().Dy() > MaxDimension {
		t.Errorf("result exceeds %d: %v", MaxDimension, img.Bounds())
	}
}

func TestProcessPosterSmallImageNotUpscaled(t *testing.T) {
	result, err := ProcessPoster(bytes.NewReader(createTestJPEG(50, 50)), nil)
	if err != nil {
		t.Fatalf("ProcessPoster small image: %v", err)
	}
	if result.Width != 50 || result.Height != 50 {
		t.Errorf("small image should not be resized: got %dx%d", result.Width, result.Height)
	}
}

func TestProcessPosterRejected(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"text", []byte("not an image")},
		{"gif", []byte("GIF89a...")},
		{"truncated webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 garbage")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ProcessPoster(bytes.NewReader(tt.data), nil); err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.RGBA
	}{
		{"#8B4513", color.RGBA{0x8B, 0x45, 0x13, 255}},
		{"#fff", color.RGBA{255, 255, 255, 255}},
		{"E5E5E5", color.RGBA{0xE5, 0xE5, 0xE5, 255}},
		{"#zzzzzz", color.RGBA{255, 255, 255, 255}},
		{"", color.RGBA{255, 255, 255, 255}},
	}
	for _, tt := range tests {
		if got := ParseHexColor(tt.in); got != tt.want {
			t.Errorf("ParseHexColor(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
