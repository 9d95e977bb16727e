package texture

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// TGA errors.
var (
	ErrTGATruncated   = errors.New("truncated TGA data")
	ErrTGAUnsupported = errors.New("unsupported TGA variant")
)

// TGA image types handled by DecodeTGA.
const (
	tgaTypeTrueColor    = 2
	tgaTypeTrueColorRLE = 10
	tgaHeaderSize       = 18
)

// DecodeTGA decodes uncompressed or RLE true-color TGA images at 24 or 32
// bits per pixel.
func DecodeTGA(data []byte) (image.Image, error) {
	if len(data) < tgaHeaderSize {
		return nil, ErrTGATruncated
	}

	idLength := int(data[0])
	colorMapType := data[1]
	imageType := data[2]
	width := int(data[12]) | int(data[13])<<8
	height := int(data[14]) | int(data[15])<<8
	bpp := int(data[16])
	descriptor := data[17]

	if colorMapType != 0 {
		return nil, fmt.Errorf("%w: color-mapped", ErrTGAUnsupported)
	}
	if imageType != tgaTypeTrueColor && imageType != tgaTypeTrueColorRLE {
		return nil, fmt.Errorf("%w: type %d", ErrTGAUnsupported, imageType)
	}
	if bpp != 24 && bpp != 32 {
		return nil, fmt.Errorf("%w: %d bits per pixel", ErrTGAUnsupported, bpp)
	}

	offset := tgaHeaderSize + idLength
	if offset > len(data) {
		return nil, ErrTGATruncated
	}

	r := &tgaReader{
		img:         image.NewRGBA(image.Rect(0, 0, width, height)),
		data:        data[offset:],
		width:       width,
		height:      height,
		bytesPerPix: bpp / 8,
		topDown:     descriptor&0x20 != 0,
	}

	var err error
	if imageType == tgaTypeTrueColor {
		err = r.readRaw()
	} else {
		err = r.readRLE()
	}
	if err != nil {
		return nil, err
	}
	return r.img, nil
}

type tgaReader struct {
	img         *image.RGBA
	data        []byte
	pos         int
	width       int
	height      int
	bytesPerPix int
	topDown     bool
}

// next reads one BGR(A) pixel.
func (r *tgaReader) next() (color.RGBA, bool) {
	if r.pos+r.bytesPerPix > len(r.data) {
		return color.RGBA{}, false
	}
	p := r.data[r.pos:]
	c := color.RGBA{R: p[2], G: p[1], B: p[0], A: 255}
	if r.bytesPerPix == 4 {
		c.A = p[3]
	}
	r.pos += r.bytesPerPix
	return c, true
}

// put stores pixel n in scan order, honoring the image origin.
func (r *tgaReader) put(n int, c color.RGBA) {
	x, y := n%r.width, n/r.width
	if !r.topDown {
		y = r.height - 1 - y
	}
	r.img.SetRGBA(x, y, c)
}

func (r *tgaReader) readRaw() error {
	total := r.width * r.height
	if len(r.data) < total*r.bytesPerPix {
		return ErrTGATruncated
	}
	for n := 0; n < total; n++ {
		c, _ := r.next()
		r.put(n, c)
	}
	return nil
}

// readRLE decodes run-length packets. A stream ending early leaves the
// remaining pixels transparent.
func (r *tgaReader) readRLE() error {
	total := r.width * r.height
	n := 0
	for n < total && r.pos < len(r.data) {
		header := r.data[r.pos]
		r.pos++
		count := int(header&0x7f) + 1

		if header&0x80 != 0 {
			c, ok := r.next()
			if !ok {
				return nil
			}
			for i := 0; i < count && n < total; i++ {
				r.put(n, c)
				n++
			}
			continue
		}
		for i := 0; i < count && n < total; i++ {
			c, ok := r.next()
			if !ok {
				return nil
			}
			r.put(n, c)
			n++
		}
	}
	return nil
}
