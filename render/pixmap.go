package render

import "image"

// Pixmap is the rasterization target: packed 8-bit RGBA rows, top-left
// origin. It borrows nothing from the document it was rendered from and
// stays valid after the document closes.
type Pixmap struct {
	Width  int
	Height int
	Stride int
	Pix    []uint8
}

func newPixmap(width, height int) *Pixmap {
	p := &Pixmap{
		Width:  width,
		Height: height,
		Stride: width * 4,
		Pix:    make([]uint8, width*height*4),
	}
	for i := range p.Pix {
		p.Pix[i] = 0xFF // white, opaque
	}
	return p
}

// RGBA exposes the pixel buffer as an image.RGBA sharing the same memory.
func (p *Pixmap) RGBA() *image.RGBA {
	return &image.RGBA{
		Pix:    p.Pix,
		Stride: p.Stride,
		Rect:   image.Rect(0, 0, p.Width, p.Height),
	}
}
