package utils

import (
	"bufio"
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestSplitJpeg(t *testing.T) {
	// Construct a stream containing: [Garbage] [JPEG] [Garbage]
	// SOI (Start of Image): FF D8
	// EOI (End of Image):   FF D9

	jpegData := []byte{0xFF, 0xD8, 0x01, 0x02, 0x03, 0xFF, 0xD9}

	streamData := []byte{0x00, 0x00} // Garbage at start
	streamData = append(streamData, jpegData...)
	streamData = append(streamData, []byte{0x00, 0x00}...) // Garbage at end

	scanner := bufio.NewScanner(bytes.NewReader(streamData))
	scanner.Split(SplitJpeg)

	if !scanner.Scan() {
		t.Fatal("Expected to find a token, got EOF")
	}
	if !bytes.Equal(scanner.Bytes(), jpegData) {
		t.Errorf("Expected %X, got %X", jpegData, scanner.Bytes())
	}

	// The trailing garbage is not a JPEG
	if scanner.Scan() {
		t.Error("Expected only one token, found more")
	}
}

func TestSplitJpegBackToBack(t *testing.T) {
	a := []byte{0xFF, 0xD8, 0xAA, 0xFF, 0xD9}
	b := []byte{0xFF, 0xD8, 0xBB, 0xBB, 0xFF, 0xD9}
	scanner := bufio.NewScanner(bytes.NewReader(append(append([]byte{}, a...), b...)))
	scanner.Split(SplitJpeg)

	var got [][]byte
	for scanner.Scan() {
		got = append(got, append([]byte{}, scanner.Bytes()...))
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(got))
	}
	if !bytes.Equal(got[0], a) || !bytes.Equal(got[1], b) {
		t.Errorf("Frames split incorrectly: %X", got)
	}
}

func TestParseProbe(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    VideoInfo
		wantErr bool
	}{
		{
			name: "NTSC rate",
			in:   `{"streams":[{"width":1920,"height":1080,"r_frame_rate":"30000/1001","nb_frames":"150"}]}`,
			want: VideoInfo{Width: 1920, Height: 1080, FPS: 30000.0 / 1001.0, Frames: 150},
		},
		{
			name: "Missing frame count",
			in:   `{"streams":[{"width":640,"height":360,"r_frame_rate":"25/1","nb_frames":"N/A"}]}`,
			want: VideoInfo{Width: 640, Height: 360, FPS: 25},
		},
		{
			name:    "No streams",
			in:      `{"streams":[]}`,
			wantErr: true,
		},
		{
			name:    "Zero size",
			in:      `{"streams":[{"width":0,"height":0}]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseProbe([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseProbe() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Width != tt.want.Width || got.Height != tt.want.Height || got.Frames != tt.want.Frames {
				t.Errorf("parseProbe() = %+v, want %+v", got, tt.want)
			}
			if math.Abs(got.FPS-tt.want.FPS) > 1e-9 {
				t.Errorf("FPS = %v, want %v", got.FPS, tt.want.FPS)
			}
		})
	}
}

func TestCacheKey(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/videos/My Interview.mp4", "my-interview"},
		{"clip.mov", "clip"},
		{"/a/b/Podcast Episode 12.mkv", "podcast-episode-12"},
	}
	for _, tt := range tests {
		if got := CacheKey(tt.path); got != tt.want {
			t.Errorf("CacheKey(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}

	// Same base name in different directories collides.
	if CacheKey("/a/clip.mp4") != CacheKey("/b/clip.mp4") {
		t.Error("Expected keys from the same base name to collide")
	}
}

func TestFingerprintKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "talk.mp4")
	if err := os.WriteFile(path, []byte("fake video content"), 0644); err != nil {
		t.Fatal(err)
	}

	id, err := FingerprintKey(path, "savgol(window=11,order=3)")
	if err != nil || id == "" {
		t.Fatalf("Failed to generate key: %v", err)
	}

	// Verify Determinism
	id2, _ := FingerprintKey(path, "savgol(window=11,order=3)")
	if id != id2 {
		t.Errorf("Key is not deterministic. Got %s, then %s", id, id2)
	}

	// Different parameters -> different key
	id3, _ := FingerprintKey(path, "gaussian(sigma=2)")
	if id == id3 {
		t.Error("Key did not change with tracking parameters")
	}

	// Verify Sensitivity (Change content -> Change key)
	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	f.Write([]byte(" modification"))
	f.Close()

	id4, _ := FingerprintKey(path, "savgol(window=11,order=3)")
	if id == id4 {
		t.Error("Key did not change after file modification")
	}

	if _, err := FingerprintKey(filepath.Join(dir, "missing.mp4"), ""); err == nil {
		t.Error("Expected error for missing file")
	}
}
