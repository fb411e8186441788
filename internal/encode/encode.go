// Package encode holds the byte-in/byte-out image codecs grim's CLI uses
// to turn a captured RGBA buffer into a file on disk or a stream to
// stdout. Per spec.md §1 these are external collaborators — straightforward
// codecs with no design interest of their own — so each format gets the
// simplest wiring that exercises the codec the corpus actually uses for it.
package encode

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/dlecorfec/progjpeg"
)

// Format identifies an output image format.
type Format int

const (
	PNG Format = iota
	PPM
	JPEG
)

// ParseFormat maps a CLI -t value onto a Format.
func ParseFormat(s string) (Format, bool) {
	switch s {
	case "png":
		return PNG, true
	case "ppm":
		return PPM, true
	case "jpeg":
		return JPEG, true
	default:
		return 0, false
	}
}

// Options carries the encode-time parameters the CLI's -q/-l/-p flags
// feed through.
type Options struct {
	// JPEGQuality is 1-100; values <= 0 select progjpeg.DefaultQuality.
	// Only meaningful for JPEG.
	JPEGQuality int
	// JPEGProgressive enables progjpeg's progressive scan script.
	JPEGProgressive bool
	// PNGCompressionLevel is 0-9; only meaningful for PNG.
	PNGCompressionLevel int
}

func toNRGBA(data []byte, width, height int32) *image.NRGBA {
	return &image.NRGBA{
		Pix:    data,
		Stride: int(width) * 4,
		Rect:   image.Rect(0, 0, int(width), int(height)),
	}
}

// Encode writes data (tightly packed RGBA, stride 4*width) to w in the
// requested format.
func Encode(w io.Writer, data []byte, width, height int32, format Format, opts Options) error {
	img := toNRGBA(data, width, height)
	switch format {
	case PNG:
		return encodePNG(w, img, opts)
	case PPM:
		return encodePPM(w, img)
	case JPEG:
		return encodeJPEG(w, img, opts)
	default:
		return fmt.Errorf("encode: unknown format %d", format)
	}
}

func encodePNG(w io.Writer, img *image.NRGBA, opts Options) error {
	enc := &png.Encoder{CompressionLevel: pngCompressionLevel(opts.PNGCompressionLevel)}
	return enc.Encode(w, img)
}

// pngCompressionLevel maps the CLI's 0-9 scale onto image/png's five-valued
// CompressionLevel enum: 0 maps to NoCompression, 1-9 to the nearest of
// BestSpeed/DefaultCompression/BestCompression.
func pngCompressionLevel(level int) png.CompressionLevel {
	switch {
	case level <= 0:
		return png.NoCompression
	case level <= 3:
		return png.BestSpeed
	case level <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

// encodePPM writes the portable pixmap (P6) format: a plain-text header
// followed by tightly packed big-endian RGB triples, one row at a time,
// dropping the alpha channel.
func encodePPM(w io.Writer, img *image.NRGBA) error {
	bw := bufio.NewWriter(w)
	width, height := img.Rect.Dx(), img.Rect.Dy()
	if _, err := fmt.Fprintf(bw, "P6\n%d %d\n255\n", width, height); err != nil {
		return err
	}
	row := make([]byte, width*3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			row[x*3], row[x*3+1], row[x*3+2] = c.R, c.G, c.B
		}
		if _, err := bw.Write(row); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func encodeJPEG(w io.Writer, img *image.NRGBA, opts Options) error {
	quality := opts.JPEGQuality
	if quality <= 0 {
		quality = progjpeg.DefaultQuality
	}
	return progjpeg.Encode(w, img, &progjpeg.Options{
		Quality:     quality,
		Progressive: opts.JPEGProgressive,
	})
}
