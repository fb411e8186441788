package grim

// Transform identifies one of the eight wl_output transform variants, as
// reported by the output-geometry event and the registry's wl_output.
type Transform int

const (
	TransformNormal Transform = iota
	TransformR90
	TransformR180
	TransformR270
	TransformFlipped
	TransformFlippedR90
	TransformFlippedR180
	TransformFlippedR270
)

// transformFromWire maps the wl_output.transform enum value onto Transform.
func transformFromWire(v uint32) Transform {
	switch v {
	case 0:
		return TransformNormal
	case 1:
		return TransformR90
	case 2:
		return TransformR180
	case 3:
		return TransformR270
	case 4:
		return TransformFlipped
	case 5:
		return TransformFlippedR90
	case 6:
		return TransformFlippedR180
	case 7:
		return TransformFlippedR270
	default:
		return TransformNormal
	}
}

// rgbaImage is the packed 8-bit-per-channel RGBA pixel buffer the transform
// and compositor components operate on; row stride is always 4*Width.
type rgbaImage struct {
	Pixels        []byte
	Width, Height int32
}

func newRGBAImage(width, height int32) rgbaImage {
	return rgbaImage{Pixels: make([]byte, int(width)*int(height)*4), Width: width, Height: height}
}

func (img rgbaImage) at(x, y int32) []byte {
	i := (int(y)*int(img.Width) + int(x)) * 4
	return img.Pixels[i : i+4]
}

// rotate90CW rotates the image 90 degrees clockwise: dst(w,h) = (src.h, src.w).
func rotate90CW(src rgbaImage) rgbaImage {
	dst := newRGBAImage(src.Height, src.Width)
	for y := int32(0); y < src.Height; y++ {
		for x := int32(0); x < src.Width; x++ {
			dx := src.Height - 1 - y
			dy := x
			copy(dst.at(dx, dy), src.at(x, y))
		}
	}
	return dst
}

// rotate180 rotates the image 180 degrees in place dimensions.
func rotate180(src rgbaImage) rgbaImage {
	dst := newRGBAImage(src.Width, src.Height)
	for y := int32(0); y < src.Height; y++ {
		for x := int32(0); x < src.Width; x++ {
			dx := src.Width - 1 - x
			dy := src.Height - 1 - y
			copy(dst.at(dx, dy), src.at(x, y))
		}
	}
	return dst
}

// rotate270CW rotates the image 270 degrees clockwise (90 counter-clockwise).
func rotate270CW(src rgbaImage) rgbaImage {
	dst := newRGBAImage(src.Height, src.Width)
	for y := int32(0); y < src.Height; y++ {
		for x := int32(0); x < src.Width; x++ {
			dx := y
			dy := src.Width - 1 - x
			copy(dst.at(dx, dy), src.at(x, y))
		}
	}
	return dst
}

// flipHorizontal mirrors the image left-to-right.
func flipHorizontal(src rgbaImage) rgbaImage {
	dst := newRGBAImage(src.Width, src.Height)
	for y := int32(0); y < src.Height; y++ {
		for x := int32(0); x < src.Width; x++ {
			dx := src.Width - 1 - x
			copy(dst.at(dx, y), src.at(x, y))
		}
	}
	return dst
}

// flipVertical mirrors the image top-to-bottom.
func flipVertical(src rgbaImage) rgbaImage {
	dst := newRGBAImage(src.Width, src.Height)
	for y := int32(0); y < src.Height; y++ {
		dy := src.Height - 1 - y
		rowStart := int(y) * int(src.Width) * 4
		rowEnd := rowStart + int(src.Width)*4
		dstStart := int(dy) * int(src.Width) * 4
		copy(dst.Pixels[dstStart:dstStart+int(src.Width)*4], src.Pixels[rowStart:rowEnd])
	}
	return dst
}

// applyImageTransform dispatches on t. Flipped variants are defined as
// "flip horizontally, then rotate", except FlippedR180 which equals a
// pure vertical flip — this matches the original source's transform table
// exactly, not a derived simplification.
func applyImageTransform(src rgbaImage, t Transform) rgbaImage {
	switch t {
	case TransformNormal:
		return src
	case TransformR90:
		return rotate90CW(src)
	case TransformR180:
		return rotate180(src)
	case TransformR270:
		return rotate270CW(src)
	case TransformFlipped:
		return flipHorizontal(src)
	case TransformFlippedR90:
		return rotate90CW(flipHorizontal(src))
	case TransformFlippedR180:
		return flipVertical(src)
	case TransformFlippedR270:
		return rotate270CW(flipHorizontal(src))
	default:
		return src
	}
}

// invertTransform returns the transform whose applyImageTransform undoes t.
func invertTransform(t Transform) Transform {
	switch t {
	case TransformR90:
		return TransformR270
	case TransformR270:
		return TransformR90
	default:
		return t
	}
}

// applyOutputTransform swaps w and h for the 90/270 and flipped-90/270
// variants, used whenever a logical dimension must be deduced from a
// physical one (or vice versa) under rotation.
func applyOutputTransform(t Transform, w, h int32) (int32, int32) {
	switch t {
	case TransformR90, TransformR270, TransformFlippedR90, TransformFlippedR270:
		return h, w
	default:
		return w, h
	}
}
