package grim

import (
	"errors"
	"testing"
)

// TestScaleImageGeneralZeroDimension pins the Kind contract: a scale
// factor small enough to floor a dimension to zero is an InvalidRegion,
// not a ScalingFailed, per the underlying resampler's own error taxonomy.
func TestScaleImageGeneralZeroDimension(t *testing.T) {
	src := makeTestImage(1, 1)
	_, err := scaleImageGeneral(src, 0.3)
	if err == nil {
		t.Fatal("expected error for zero-dimension result")
	}
	var grimErr *Error
	if !errors.As(err, &grimErr) || grimErr.Kind != InvalidRegion {
		t.Errorf("Kind = %v, want InvalidRegion", err)
	}
}

// TestScenarioS3 mirrors §8's S3: upscaling a 3x2 RGBA image by factor 2
// must duplicate each source pixel into a 2x2 destination block.
func TestScenarioS3(t *testing.T) {
	src := newRGBAImage(3, 2)
	colors := [][4]byte{
		{255, 0, 0, 255}, {0, 255, 0, 255}, {0, 0, 255, 255}, // R, G, B
		{0, 255, 255, 255}, {255, 0, 255, 255}, {255, 255, 0, 255}, // C, M, Y
	}
	i := 0
	for y := int32(0); y < 2; y++ {
		for x := int32(0); x < 3; x++ {
			copy(src.at(x, y), colors[i][:])
			i++
		}
	}

	dst, err := scaleImageIntegerFast(src, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dst.Width != 6 || dst.Height != 4 {
		t.Fatalf("dims = %dx%d, want 6x4", dst.Width, dst.Height)
	}
	for y := int32(0); y < 2; y++ {
		for x := int32(0); x < 3; x++ {
			want := colors[y*3+x]
			for dy := int32(0); dy < 2; dy++ {
				for dx := int32(0); dx < 2; dx++ {
					got := dst.at(x*2+dx, y*2+dy)
					for c := 0; c < 4; c++ {
						if got[c] != want[c] {
							t.Errorf("block (%d,%d) channel %d = %d, want %d", x, y, c, got[c], want[c])
						}
					}
				}
			}
		}
	}
}

func TestFastPathEquivalence(t *testing.T) {
	for _, n := range []int32{2, 3, 4} {
		src := makeTestImage(4, 3)
		dst, err := scaleImageIntegerFast(src, n)
		if err != nil {
			t.Fatalf("factor %d: unexpected error: %v", n, err)
		}
		for sy := int32(0); sy < src.Height; sy++ {
			for sx := int32(0); sx < src.Width; sx++ {
				want := src.at(sx, sy)
				for dy := int32(0); dy < n; dy++ {
					for dx := int32(0); dx < n; dx++ {
						got := dst.at(sx*n+dx, sy*n+dy)
						for c := 0; c < 4; c++ {
							if got[c] != want[c] {
								t.Errorf("factor %d, src (%d,%d): channel %d mismatch", n, sx, sy, c)
							}
						}
					}
				}
			}
		}
	}
}

func TestScaleImageDataPassthrough(t *testing.T) {
	src := makeTestImage(4, 4)
	got, err := scaleImageData(src, 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Width != src.Width || got.Height != src.Height {
		t.Errorf("scale 1.0 changed dimensions")
	}
}

// TestFilterForScaleThresholds pins §4.6's contractual filter-selection
// thresholds by the chosen filter's Support radius: NearestNeighbor is 0,
// Linear (triangle) is 1, CatmullRom is 2, Lanczos-3 is 3.
func TestFilterForScaleThresholds(t *testing.T) {
	cases := []struct {
		scale       float64
		wantSupport float64
	}{
		{1.5, 0},
		{0.9, 1},
		{0.6, 2},
		{0.3, 3},
	}
	for _, c := range cases {
		got := filterForScale(c.scale)
		if got.Support != c.wantSupport {
			t.Errorf("scale %v: Support = %v, want %v", c.scale, got.Support, c.wantSupport)
		}
	}
}
