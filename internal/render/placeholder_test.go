package render

import (
	"bytes"
	"image/png"
	"reflect"
	"strings"
	"testing"

	"github.com/chai2010/webp"

	"github.com/adverant/nexus/segment-worker/internal/layout"
)

func TestPlaceholderDrawsFragmentBoxes(t *testing.T) {
	fragments := []layout.TextFragment{
		{ID: "f1", Text: "Quarterly results", Box: layout.BoundingBox{X: 100, Y: 50, Width: 300, Height: 40}},
	}

	img := Placeholder(fragments, 640, 360)

	if img.Bounds().Dx() != 640 || img.Bounds().Dy() != 360 {
		t.Fatalf("canvas size = %v", img.Bounds())
	}
	if got := img.NRGBAAt(100, 50); got != boxColor {
		t.Errorf("box corner colour = %v, want %v", got, boxColor)
	}
	if got := img.NRGBAAt(10, 10); got != background {
		t.Errorf("background colour = %v", got)
	}
}

func TestPlaceholderDefaultsSize(t *testing.T) {
	img := Placeholder(nil, 0, 0)
	if img.Bounds().Dx() != DefaultWidth || img.Bounds().Dy() != DefaultHeight {
		t.Errorf("default canvas = %v", img.Bounds())
	}
}

func TestEncodeScalesAndEncodes(t *testing.T) {
	img := Placeholder(nil, 1280, 720)

	data, mime, err := Encode(img, "png", 640)
	if err != nil {
		t.Fatalf("Encode png: %v", err)
	}
	if mime != "image/png" {
		t.Errorf("mime = %s", mime)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if decoded.Bounds().Dx() != 640 || decoded.Bounds().Dy() != 360 {
		t.Errorf("scaled size = %v", decoded.Bounds())
	}

	data, mime, err = Encode(img, "webp", 0)
	if err != nil {
		t.Fatalf("Encode webp: %v", err)
	}
	if mime != "image/webp" {
		t.Errorf("mime = %s", mime)
	}
	if _, err := webp.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("decode webp: %v", err)
	}

	if _, _, err := Encode(img, "gif", 0); err == nil {
		t.Error("expected unsupported format error")
	}
}

func TestDataURL(t *testing.T) {
	got := DataURL([]byte("abc"), "image/png")
	if !strings.HasPrefix(got, "data:image/png;base64,") || !strings.HasSuffix(got, "YWJj") {
		t.Errorf("DataURL = %s", got)
	}
}

func TestWrap(t *testing.T) {
	tests := []struct {
		text  string
		width int
		want  []string
	}{
		{"one two three", 7, []string{"one two", "three"}},
		{"abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"", 10, nil},
		{"a b", 0, []string{"a", "b"}},
	}

	for _, tc := range tests {
		if got := wrap(tc.text, tc.width); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("wrap(%q, %d) = %q, want %q", tc.text, tc.width, got, tc.want)
		}
	}
}
