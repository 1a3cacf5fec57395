package domain

import "image"

// Image is a decoded image.
//
// Data holds the decoded pixels when they were retained at decode time, and is nil otherwise.
type Image struct {
	Source  string
	Bounds  image.Rectangle
	Data    image.Image
	Mipmap  bool
	NoCache bool
}

func (i *Image) Width() int {
	return i.Bounds.Dx()
}

func (i *Image) Height() int {
	return i.Bounds.Dy()
}

func (i *Image) HasData() bool {
	return i.Data != nil
}

type DecodeOptions struct {
	Mipmap  bool
	NoCache bool
}

// Result is what the loader stores in its cache for an identifier.
//
// A Result with a non-nil Err holds the error image for a load that failed but was recovered.
type Result struct {
	Image *Image
	Err   error
}
