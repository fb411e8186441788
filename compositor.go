package grim

import "math"

// compositeRegion implements §4.5's composite_region: it builds the
// destination image for regionLogical by projecting it onto every
// intersecting output, capturing each projected sub-rectangle, resampling
// to logical scale, and blitting into the shared canvas.
func (g *Grim) compositeRegion(regionLogical Rect, overlayCursor bool) (rgbaImage, error) {
	if _, err := checkedBufferSize(uint64(regionLogical.Width), uint64(regionLogical.Height), 4, nil); err != nil {
		return rgbaImage{}, err
	}
	dst := newRGBAImage(regionLogical.Width, regionLogical.Height)

	matched := false
	for _, st := range g.reg.outputs {
		outputBox := Rect{X: st.logicalPos[0], Y: st.logicalPos[1], Width: st.logicalSize[0], Height: st.logicalSize[1]}
		inter, ok := outputBox.Intersection(regionLogical)
		if !ok {
			continue
		}
		matched = true

		scale := st.effectiveScale()
		if scale == 0 || math.IsInf(scale, 0) || math.IsNaN(scale) {
			scale = 1
		}

		lx := float64(inter.X - outputBox.X)
		ly := float64(inter.Y - outputBox.Y)
		lw := float64(inter.Width)
		lh := float64(inter.Height)

		x0 := int32(math.Floor(lx * scale))
		y0 := int32(math.Floor(ly * scale))
		x1 := int32(math.Ceil((lx + lw) * scale))
		y1 := int32(math.Ceil((ly + lh) * scale))

		x0 = clamp32(x0, 0, st.physicalSize[0])
		y0 = clamp32(y0, 0, st.physicalSize[1])
		x1 = clamp32(x1, 0, st.physicalSize[0])
		y1 = clamp32(y1, 0, st.physicalSize[1])

		physW, physH := x1-x0, y1-y0
		if physW <= 0 || physH <= 0 {
			continue
		}

		capture, err := g.captureRegionForOutput(st.wlID, st.transform, x0, y0, physW, physH, overlayCursor)
		if err != nil {
			return rgbaImage{}, err
		}
		img := rgbaImage{Pixels: capture.pixels, Width: capture.width, Height: capture.height}

		if scale != 1 {
			img, err = scaleImageData(img, 1/scale)
			if err != nil {
				return rgbaImage{}, err
			}
		}

		blitInto(dst, img, inter.X-regionLogical.X, inter.Y-regionLogical.Y)
	}

	if !matched {
		return rgbaImage{}, newErr(InvalidRegion, "region does not intersect any output")
	}
	return dst, nil
}

// blitInto copies src into dst at (offX, offY), clipping any rows or
// columns that would fall outside dst's bounds.
func blitInto(dst rgbaImage, src rgbaImage, offX, offY int32) {
	for y := int32(0); y < src.Height; y++ {
		dy := offY + y
		if dy < 0 || dy >= dst.Height {
			continue
		}
		for x := int32(0); x < src.Width; x++ {
			dx := offX + x
			if dx < 0 || dx >= dst.Width {
				continue
			}
			copy(dst.at(dx, dy), src.at(x, y))
		}
	}
}

func clamp32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// allOutputsBoundingBox computes the bounding box over every discovered
// output's logical rectangle, the region capture_all delegates to
// compositeRegion with.
func (g *Grim) allOutputsBoundingBox() (Rect, error) {
	if len(g.reg.outputs) == 0 {
		return Rect{}, newErr(NoOutputs, "no outputs discovered")
	}
	var box Rect
	first := true
	for _, st := range g.reg.outputs {
		r := Rect{X: st.logicalPos[0], Y: st.logicalPos[1], Width: st.logicalSize[0], Height: st.logicalSize[1]}
		if first {
			box = r
			first = false
			continue
		}
		x0 := min32(box.X, r.X)
		y0 := min32(box.Y, r.Y)
		x1 := max32(box.X+box.Width, r.X+r.Width)
		y1 := max32(box.Y+box.Height, r.Y+r.Height)
		box = Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
	}
	return box, nil
}

// captureOutputFull bypasses composition entirely: it captures an
// output's whole physical framebuffer and returns the normalised bitmap
// unresampled, per §4.5's capture_output(name).
func (g *Grim) captureOutputFull(name string, overlayCursor bool) (rawCapture, error) {
	st, err := g.reg.findByName(name)
	if err != nil {
		return rawCapture{}, err
	}
	return g.captureRegionForOutput(st.wlID, st.transform, 0, 0, st.physicalSize[0], st.physicalSize[1], overlayCursor)
}

// captureSubregionForOutput validates params.Region against the output's
// physical rectangle (§4.5's sub-region validation) and captures it.
func (g *Grim) captureSubregionForOutput(params CaptureParameters) (rawCapture, error) {
	st, err := g.reg.findByName(params.OutputName)
	if err != nil {
		return rawCapture{}, err
	}
	x, y, w, h := int32(0), int32(0), st.physicalSize[0], st.physicalSize[1]
	if params.Region != nil {
		r := *params.Region
		if r.X < 0 || r.Y < 0 || r.Width <= 0 || r.Height <= 0 ||
			r.X+r.Width > st.physicalSize[0] || r.Y+r.Height > st.physicalSize[1] {
			return rawCapture{}, newErr(InvalidRegion, "region exceeds output bounds")
		}
		x, y, w, h = r.X, r.Y, r.Width, r.Height
	}
	return g.captureRegionForOutput(st.wlID, st.transform, x, y, w, h, params.OverlayCursor)
}
