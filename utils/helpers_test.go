package utils

import (
	"bytes"
	"testing"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}, "jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "png"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "webp"},
		{"text", []byte("hello, world"), "unknown"},
		{"short", []byte{0xFF}, "unknown"},
		{"empty", nil, "unknown"},
		{"riff-not-webp", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), "unknown"},
	}

	for _, tt := range tests {
		if got := DetectFormat(tt.data); got != tt.want {
			t.Errorf("%s: DetectFormat = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestFormatMIME(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"jpeg", "image/jpeg"},
		{"png", "image/png"},
		{"webp", "image/webp"},
		{"unknown", "application/octet-stream"},
		{"", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := FormatMIME(tt.format); got != tt.want {
			t.Errorf("FormatMIME(%q) = %q, want %q", tt.format, got, tt.want)
		}
	}
}

func TestFitDimensions(t *testing.T) {
	tests := []struct {
		name         string
		srcW, srcH   int
		maxW, maxH   int
		upscale      bool
		wantW, wantH int
	}{
		{"landscape height-bound", 3000, 2000, 1920, 1080, false, 1620, 1080},
		{"landscape width-bound", 4000, 1000, 1920, 1080, false, 1920, 480},
		{"square", 2400, 2400, 1920, 1080, false, 1080, 1080},
		{"already fits", 800, 600, 1920, 1080, false, 800, 600},
		{"upscale enabled", 640, 480, 1920, 1080, true, 1440, 1080},
		{"exact fit", 1920, 1080, 1920, 1080, false, 1920, 1080},
		{"no width bound", 3000, 2000, 0, 1000, false, 1500, 1000},
		{"no height bound", 3000, 2000, 1500, 0, false, 1500, 1000},
		{"no bounds", 3000, 2000, 0, 0, false, 3000, 2000},
		{"zero source", 0, 100, 1920, 1080, false, 0, 100},
	}

	for _, tt := range tests {
		w, h := FitDimensions(tt.srcW, tt.srcH, tt.maxW, tt.maxH, tt.upscale)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("%s: got %dx%d, want %dx%d", tt.name, w, h, tt.wantW, tt.wantH)
		}
	}
}

func TestFitDimensions_NeverExceedsBounds(t *testing.T) {
	for srcW := 1; srcW <= 5000; srcW += 777 {
		for srcH := 1; srcH <= 5000; srcH += 777 {
			w, h := FitDimensions(srcW, srcH, 1920, 1080, false)
			if w > 1920 || h > 1080 {
				t.Errorf("src %dx%d: output %dx%d exceeds bounds", srcW, srcH, w, h)
			}
			if w < 1 || h < 1 {
				t.Errorf("src %dx%d: degenerate output %dx%d", srcW, srcH, w, h)
			}
		}
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(50, 0, 100); got != 50 {
		t.Errorf("in range: got %d, want 50", got)
	}
	if got := Clamp(-5, 0, 100); got != 0 {
		t.Errorf("below: got %d, want 0", got)
	}
	if got := Clamp(250, 0, 100); got != 100 {
		t.Errorf("above: got %d, want 100", got)
	}
}

func TestCloneBytes(t *testing.T) {
	src := []byte{1, 2, 3}
	dst := CloneBytes(src)
	if !bytes.Equal(src, dst) {
		t.Fatalf("clone differs: %v vs %v", src, dst)
	}
	src[0] = 99
	if dst[0] != 1 {
		t.Error("clone shares backing array with source")
	}
}
