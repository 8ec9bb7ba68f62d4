package filters

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	"github.com/wudi/pdfpress/ir/raw"
)

// ImageInfo describes an image XObject's pixel-level properties, pulled out
// of the stream dictionary by the caller.
type ImageInfo struct {
	Width            int
	Height           int
	BitsPerComponent int
	ColorSpace       string // DeviceGray, DeviceRGB, DeviceCMYK, Indexed
	Filter           string // innermost filter: "", DCTDecode, FlateDecode, ...
}

// Lossy reports whether the image's stored form is already lossy-coded.
func (i ImageInfo) Lossy() bool {
	return i.Filter == "DCTDecode" || i.Filter == "JPXDecode"
}

// Codec is the image codec adapter capability. The engine decodes embedded
// images to image.Image and re-encodes them under a target codec; it never
// manipulates entropy-coded bytes itself.
type Codec interface {
	DecodeImage(stream raw.Stream, info ImageInfo) (image.Image, error)
	EncodeJPEG(img image.Image, quality int) ([]byte, error)
	Resample(img image.Image, width, height int) image.Image
}

// StdCodec implements Codec on the stdlib JPEG codec plus x/image/draw
// resampling.
type StdCodec struct{}

func (StdCodec) DecodeImage(stream raw.Stream, info ImageInfo) (image.Image, error) {
	if info.Filter == "DCTDecode" {
		img, err := jpeg.Decode(bytes.NewReader(stream.RawData()))
		if err != nil {
			return nil, fmt.Errorf("jpeg decode: %v: %w", err, raw.ErrCodecFailure)
		}
		return img, nil
	}

	data, err := DecodeStream(stream)
	if err != nil {
		return nil, err
	}
	w, h := info.Width, info.Height
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("image %dx%d: %w", w, h, raw.ErrCodecFailure)
	}
	bpc := info.BitsPerComponent
	if bpc == 0 {
		bpc = 8
	}

	switch info.ColorSpace {
	case "DeviceGray", "CalGray":
		switch bpc {
		case 8:
			if len(data) < w*h {
				return nil, shortData(info, len(data))
			}
			return &image.Gray{Pix: data[:w*h], Stride: w, Rect: image.Rect(0, 0, w, h)}, nil
		case 1:
			rowLen := (w + 7) / 8
			if len(data) < rowLen*h {
				return nil, shortData(info, len(data))
			}
			img := image.NewGray(image.Rect(0, 0, w, h))
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					bit := data[y*rowLen+x/8] >> (7 - uint(x%8)) & 1
					img.Pix[y*img.Stride+x] = bit * 255
				}
			}
			return img, nil
		}
	case "DeviceRGB", "CalRGB":
		if bpc == 8 {
			if len(data) < w*h*3 {
				return nil, shortData(info, len(data))
			}
			img := image.NewNRGBA(image.Rect(0, 0, w, h))
			i := 0
			for p := 0; p < w*h; p++ {
				img.Pix[p*4] = data[i]
				img.Pix[p*4+1] = data[i+1]
				img.Pix[p*4+2] = data[i+2]
				img.Pix[p*4+3] = 255
				i += 3
			}
			return img, nil
		}
	case "DeviceCMYK":
		if bpc == 8 {
			if len(data) < w*h*4 {
				return nil, shortData(info, len(data))
			}
			img := image.NewCMYK(image.Rect(0, 0, w, h))
			copy(img.Pix, data[:w*h*4])
			return img, nil
		}
	}
	return nil, fmt.Errorf("unsupported image %s/%d bpc: %w", info.ColorSpace, bpc, raw.ErrCodecFailure)
}

func (StdCodec) EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %v: %w", err, raw.ErrCodecFailure)
	}
	return buf.Bytes(), nil
}

// Resample scales img to width x height with a CatmullRom kernel, the
// average-quality filter the save pipeline uses for downsampling.
func (StdCodec) Resample(img image.Image, width, height int) image.Image {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

func shortData(info ImageInfo, got int) error {
	return fmt.Errorf("image %dx%d %s: %d decoded bytes: %w",
		info.Width, info.Height, info.ColorSpace, got, raw.ErrCodecFailure)
}

// IsGray reports whether img carries only gray pixels by type.
func IsGray(img image.Image) bool {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return true
	}
	return false
}
