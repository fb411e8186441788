package grim

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// scaleImageData implements §4.6's resampler: s == 1 is a no-op; s within
// 0.01 of an integer in {2,3,4} takes the block-duplication fast path
// (exercised by property 6 / scenario S3); everything else runs a
// filtered resample whose filter is chosen by the exact thresholds §4.6
// makes contractual.
func scaleImageData(img rgbaImage, s float64) (rgbaImage, error) {
	if s == 1 {
		return img, nil
	}
	if fast, ok := integerFastPathFactor(s); ok {
		return scaleImageIntegerFast(img, fast)
	}
	return scaleImageGeneral(img, s)
}

func integerFastPathFactor(s float64) (int32, bool) {
	for _, n := range []int32{2, 3, 4} {
		if math.Abs(s-float64(n)) <= 0.01 {
			return n, true
		}
	}
	return 0, false
}

// scaleImageIntegerFast duplicates each source pixel into an n*n block of
// destination pixels: nearest-neighbour by construction, with no
// floating-point arithmetic in the hot loop.
func scaleImageIntegerFast(src rgbaImage, n int32) (rgbaImage, error) {
	dstW := src.Width * n
	dstH := src.Height * n
	if _, err := checkedBufferSize(uint64(dstW), uint64(dstH), 4, nil); err != nil {
		return rgbaImage{}, err
	}
	dst := newRGBAImage(dstW, dstH)
	for sy := int32(0); sy < src.Height; sy++ {
		for sx := int32(0); sx < src.Width; sx++ {
			px := src.at(sx, sy)
			for dy := int32(0); dy < n; dy++ {
				for dx := int32(0); dx < n; dx++ {
					copy(dst.at(sx*n+dx, sy*n+dy), px)
				}
			}
		}
	}
	return dst, nil
}

// scaleImageGeneral resamples via the filter §4.6's thresholds select,
// delegating the actual convolution to github.com/disintegration/imaging.
func scaleImageGeneral(src rgbaImage, s float64) (rgbaImage, error) {
	dstW := int32(math.Floor(float64(src.Width) * s))
	dstH := int32(math.Floor(float64(src.Height) * s))
	if dstW <= 0 || dstH <= 0 {
		return rgbaImage{}, newErr(InvalidRegion, "scaled dimensions must be positive")
	}
	if _, err := checkedBufferSize(uint64(dstW), uint64(dstH), 4, nil); err != nil {
		return rgbaImage{}, err
	}

	filter := filterForScale(s)
	nrgba := &image.NRGBA{
		Pix:    src.Pixels,
		Stride: int(src.Width) * 4,
		Rect:   image.Rect(0, 0, int(src.Width), int(src.Height)),
	}
	resized := imaging.Resize(nrgba, int(dstW), int(dstH), filter)

	out := newRGBAImage(dstW, dstH)
	copy(out.Pixels, resized.Pix)
	return out, nil
}

// filterForScale picks the resample filter by the thresholds §4.6 pins as
// contractual: s>1 nearest, [0.75,1) triangle, [0.5,0.75) Catmull-Rom,
// below that Lanczos-3.
func filterForScale(s float64) imaging.ResampleFilter {
	switch {
	case s > 1:
		return imaging.NearestNeighbor
	case s >= 0.75:
		return imaging.Linear
	case s >= 0.5:
		return imaging.CatmullRom
	default:
		return imaging.Lanczos
	}
}
