// Package pixfmt converts camera payloads to packed BGR.
package pixfmt

import (
	"fmt"
	"image"
)

// PackRows copies a width x height raster of channels-byte pixels out of src,
// dropping any per-row padding. src rows must be evenly spaced.
func PackRows(src []byte, width, height, channels int) ([]byte, error) {
	if width <= 0 || height <= 0 || channels <= 0 {
		return nil, fmt.Errorf("pixfmt: invalid geometry %dx%dx%d", width, height, channels)
	}

	row := width * channels
	want := row * height
	if len(src) < want {
		return nil, fmt.Errorf("pixfmt: buffer holds %d bytes, need %d", len(src), want)
	}

	out := make([]byte, want)
	if len(src) == want {
		copy(out, src)
		return out, nil
	}

	stride := len(src) / height
	if stride < row {
		return nil, fmt.Errorf("pixfmt: stride %d shorter than row %d", stride, row)
	}
	for y := 0; y < height; y++ {
		copy(out[y*row:(y+1)*row], src[y*stride:y*stride+row])
	}
	return out, nil
}

// ImageToBGR converts a decoded image to packed BGR.
func ImageToBGR(img image.Image) (width, height int, bgr []byte) {
	b := img.Bounds()
	width, height = b.Dx(), b.Dy()
	bgr = make([]byte, width*height*3)

	switch src := img.(type) {
	case *image.YCbCr:
		ycbcrToBGR(src, bgr)
	case *image.RGBA:
		i := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			p := src.Pix[src.PixOffset(b.Min.X, y):]
			for x := 0; x < width; x++ {
				bgr[i], bgr[i+1], bgr[i+2] = p[x*4+2], p[x*4+1], p[x*4]
				i += 3
			}
		}
	case *image.Gray:
		i := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			p := src.Pix[src.PixOffset(b.Min.X, y):]
			for x := 0; x < width; x++ {
				bgr[i], bgr[i+1], bgr[i+2] = p[x], p[x], p[x]
				i += 3
			}
		}
	default:
		i := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bl, _ := img.At(x, y).RGBA()
				bgr[i], bgr[i+1], bgr[i+2] = byte(bl>>8), byte(g>>8), byte(r>>8)
				i += 3
			}
		}
	}
	return width, height, bgr
}

// ycbcrToBGR is the JPEG fast path.
func ycbcrToBGR(src *image.YCbCr, dst []byte) {
	b := src.Bounds()
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			yi := src.YOffset(x, y)
			ci := src.COffset(x, y)
			r, g, bl := ycbcr(src.Y[yi], src.Cb[ci], src.Cr[ci])
			dst[i], dst[i+1], dst[i+2] = bl, g, r
			i += 3
		}
	}
}

// ycbcr matches image/color.YCbCrToRGB (JFIF full range).
func ycbcr(y, cb, cr uint8) (r, g, b uint8) {
	yy := int32(y) * 0x10101
	cb1 := int32(cb) - 128
	cr1 := int32(cr) - 128

	r1 := yy + 91881*cr1
	g1 := yy - 22554*cb1 - 46802*cr1
	b1 := yy + 116130*cb1

	return clamp16(r1), clamp16(g1), clamp16(b1)
}

func clamp16(v int32) uint8 {
	if uint32(v)&0xff000000 == 0 {
		return uint8(v >> 16)
	}
	if v < 0 {
		return 0
	}
	return 0xff
}
