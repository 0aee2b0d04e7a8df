package avatar_test

import (
	"bytes"
	"errors"
	"image/png"
	"path/filepath"
	"testing"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"avatarmig/internal/avatar"
	"avatarmig/internal/services"
	"avatarmig/internal/testsupport"
)

func TestTranscodeProducesExactSizes(t *testing.T) {
	raw := testsupport.PNG(t, 300, 300)
	set, err := avatar.Transcoder{}.Transcode(raw)
	if err != nil {
		t.Fatalf("Transcode: %v", err)
	}
	if !bytes.Equal(set.Raw, raw) {
		t.Fatal("raw rendition must be byte-identical to the input")
	}
	for _, tc := range []struct {
		name string
		data []byte
		size int
	}{
		{"264", set.Size264, avatar.Size264},
		{"100", set.Size100, avatar.Size100},
		{"40", set.Size40, avatar.Size40},
	} {
		img, err := png.Decode(bytes.NewReader(tc.data))
		if err != nil {
			t.Fatalf("rendition %s is not png: %v", tc.name, err)
		}
		b := img.Bounds()
		if b.Dx() != tc.size || b.Dy() != tc.size {
			t.Fatalf("rendition %s has size %dx%d, want %dx%d", tc.name, b.Dx(), b.Dy(), tc.size, tc.size)
		}
	}
}

func TestTranscodeAcceptsNearSquareJPEG(t *testing.T) {
	raw := testsupport.JPEG(t, 400, 410)
	set, err := avatar.Transcoder{}.Transcode(raw)
	if err != nil {
		t.Fatalf("Transcode: %v", err)
	}
	if !set.Complete() {
		t.Fatal("expected complete rendition set")
	}
}

func TestTranscodeAcceptsGIF(t *testing.T) {
	if _, err := (avatar.Transcoder{}).Transcode(testsupport.GIF(t, 64, 64)); err != nil {
		t.Fatalf("Transcode gif: %v", err)
	}
}

func TestTranscodeRejectsAspectRatio(t *testing.T) {
	cases := []struct {
		name          string
		width, height int
	}{
		{"wide", 300, 200},
		{"tall", 200, 300},
		{"just outside", 100, 106},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			set, err := avatar.Transcoder{}.Transcode(testsupport.PNG(t, tc.width, tc.height))
			if !errors.Is(err, services.ErrFormat) {
				t.Fatalf("expected format error, got %v", err)
			}
			if set.Complete() || len(set.Raw) != 0 {
				t.Fatal("expected no renditions on rejection")
			}
		})
	}
}

func TestTranscodeRejectsUnknownSignature(t *testing.T) {
	_, err := avatar.Transcoder{}.Transcode([]byte("definitely not an image"))
	if !errors.Is(err, services.ErrFormat) {
		t.Fatalf("expected format error, got %v", err)
	}
	_, err = avatar.Transcoder{}.Transcode(nil)
	if !errors.Is(err, services.ErrFormat) {
		t.Fatalf("expected format error for empty input, got %v", err)
	}
}

func TestTranscodeRejectsCorruptPNG(t *testing.T) {
	raw := testsupport.PNG(t, 50, 50)
	corrupt := append([]byte(nil), raw[:32]...)
	corrupt = append(corrupt, bytes.Repeat([]byte{0xff}, 64)...)
	_, err := avatar.Transcoder{}.Transcode(corrupt)
	if !errors.Is(err, services.ErrFormat) {
		t.Fatalf("expected format error, got %v", err)
	}
}

func TestTranscodeFileMissing(t *testing.T) {
	_, err := avatar.Transcoder{}.TranscodeFile(filepath.Join(t.TempDir(), "absent.jpg"))
	if !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected io error, got %v", err)
	}
}

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want avatar.Format
	}{
		{"png", testsupport.PNG(t, 4, 4), avatar.FormatPNG},
		{"jpeg", testsupport.JPEG(t, 4, 4), avatar.FormatJPEG},
		{"gif", testsupport.GIF(t, 4, 4), avatar.FormatGIF},
		{"bmp", encodeBMP(t, 4, 4), avatar.FormatBMP},
		{"tiff", encodeTIFF(t, 4, 4), avatar.FormatTIFF},
		{"webp", append([]byte("RIFF\x00\x00\x00\x00WEBPVP8 "), make([]byte, 32)...), avatar.FormatWebP},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := avatar.DetectFormat(tc.data)
			if err != nil {
				t.Fatalf("DetectFormat: %v", err)
			}
			if got != tc.want {
				t.Fatalf("DetectFormat = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTranscodeDecodesBMPAndTIFF(t *testing.T) {
	for name, raw := range map[string][]byte{
		"bmp":  encodeBMP(t, 80, 80),
		"tiff": encodeTIFF(t, 80, 80),
	} {
		set, err := avatar.Transcoder{}.Transcode(raw)
		if err != nil {
			t.Fatalf("Transcode %s: %v", name, err)
		}
		if !set.Complete() {
			t.Fatalf("expected complete rendition set for %s", name)
		}
	}
}

func encodeBMP(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, testsupport.Gradient(width, height)); err != nil {
		t.Fatalf("encode bmp: %v", err)
	}
	return buf.Bytes()
}

func encodeTIFF(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, testsupport.Gradient(width, height), nil); err != nil {
		t.Fatalf("encode tiff: %v", err)
	}
	return buf.Bytes()
}
