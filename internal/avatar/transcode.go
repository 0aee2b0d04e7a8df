package avatar

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"avatarmig/internal/services"
)

// Rendition edge lengths in pixels, largest first.
const (
	Size264 = 264
	Size100 = 100
	Size40  = 40
)

// Accepted width/height ratio bounds, inclusive.
const (
	MinAspectRatio = 0.95
	MaxAspectRatio = 1.05
)

// Bucket directory names under the output root.
const (
	BucketRaw = "raw"
	Bucket40  = "40"
	Bucket100 = "100"
	Bucket264 = "264"
)

// RenditionSet is the full output for one source image. Raw holds the
// original bytes unchanged; the sized members are PNG encoded.
type RenditionSet struct {
	Raw     []byte
	Size40  []byte
	Size100 []byte
	Size264 []byte
}

// Rendition pairs a bucket directory with its payload.
type Rendition struct {
	Bucket string
	Data   []byte
}

// Renditions lists the members in write order.
func (s RenditionSet) Renditions() []Rendition {
	return []Rendition{
		{Bucket: BucketRaw, Data: s.Raw},
		{Bucket: Bucket40, Data: s.Size40},
		{Bucket: Bucket100, Data: s.Size100},
		{Bucket: Bucket264, Data: s.Size264},
	}
}

// Complete reports whether every member is populated.
func (s RenditionSet) Complete() bool {
	for _, r := range s.Renditions() {
		if len(r.Data) == 0 {
			return false
		}
	}
	return true
}

// Transcoder decodes, validates, and resizes avatar images. The zero value
// is ready to use and safe for concurrent use.
type Transcoder struct{}

// TranscodeFile reads path and transcodes its contents.
func (t Transcoder) TranscodeFile(path string) (RenditionSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		msg := "read source image"
		if errors.Is(err, fs.ErrNotExist) {
			msg = "source image missing"
		}
		return RenditionSet{}, services.Wrap(services.ErrIO, "avatar", "transcode", msg, err)
	}
	return t.Transcode(raw)
}

// Transcode produces the rendition set for raw image bytes. Images whose
// aspect ratio falls outside [MinAspectRatio, MaxAspectRatio] are rejected
// and no renditions are returned.
func (t Transcoder) Transcode(raw []byte) (RenditionSet, error) {
	format, err := DetectFormat(raw)
	if err != nil {
		return RenditionSet{}, err
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return RenditionSet{}, services.Wrap(services.ErrFormat, "avatar", "decode", string(format), err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return RenditionSet{}, services.Wrap(services.ErrFormat, "avatar", "decode", "empty image bounds", nil)
	}
	ratio := float64(bounds.Dx()) / float64(bounds.Dy())
	if ratio < MinAspectRatio || ratio > MaxAspectRatio {
		return RenditionSet{}, services.Wrap(
			services.ErrFormat,
			"avatar",
			"aspect ratio",
			fmt.Sprintf("%dx%d ratio %.3f outside [%.2f, %.2f]", bounds.Dx(), bounds.Dy(), ratio, MinAspectRatio, MaxAspectRatio),
			nil,
		)
	}

	set := RenditionSet{Raw: raw}
	for _, target := range []struct {
		size int
		dst  *[]byte
	}{
		{Size264, &set.Size264},
		{Size100, &set.Size100},
		{Size40, &set.Size40},
	} {
		data, err := encodeSquare(img, target.size)
		if err != nil {
			return RenditionSet{}, err
		}
		*target.dst = data
	}
	return set, nil
}

func encodeSquare(img image.Image, size int) ([]byte, error) {
	resized := imaging.Fill(img, size, size, imaging.Center, imaging.CatmullRom)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.PNG); err != nil {
		return nil, services.Wrap(services.ErrFormat, "avatar", "encode", fmt.Sprintf("png %dx%d", size, size), err)
	}
	return buf.Bytes(), nil
}
