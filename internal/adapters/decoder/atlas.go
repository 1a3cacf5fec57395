package decoder

import (
	"image"
	"image/color"
	"maps"
)

const (
	DefaultThemeAtlasName = "data/images/defaulttheme"

	LoadingImageSource = AtlasPrefix + DefaultThemeAtlasName + "/image-loading"
	MissingImageSource = AtlasPrefix + DefaultThemeAtlasName + "/image-missing"
)

// Atlas is a named set of in-memory images.
type Atlas struct {
	entries map[string]image.Image
}

func NewAtlas(entries map[string]image.Image) *Atlas {
	return &Atlas{entries: maps.Clone(entries)}
}

func (a *Atlas) Entry(name string) (image.Image, bool) {
	entry, ok := a.entries[name]
	return entry, ok
}

func NewDefaultThemeAtlas() *Atlas {
	return NewAtlas(map[string]image.Image{
		"image-loading": loadingImage(32),
		"image-missing": missingImage(32, 8),
	})
}

// Gray square with a light border
func loadingImage(size int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	fill := color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}
	border := color.RGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff}
	for y := range size {
		for x := range size {
			if x < 2 || y < 2 || x >= size-2 || y >= size-2 {
				img.SetRGBA(x, y, border)
			} else {
				img.SetRGBA(x, y, fill)
			}
		}
	}
	return img
}

// Magenta and black checkerboard
func missingImage(size, cell int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	magenta := color.RGBA{R: 0xff, B: 0xff, A: 0xff}
	black := color.RGBA{A: 0xff}
	for y := range size {
		for x := range size {
			if (x/cell+y/cell)%2 == 0 {
				img.SetRGBA(x, y, magenta)
			} else {
				img.SetRGBA(x, y, black)
			}
		}
	}
	return img
}
