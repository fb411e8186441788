// Package grim captures the contents of Wayland outputs via the
// wlr-screencopy protocol and composites them into PNG-, PPM- or
// JPEG-ready RGBA images.
package grim

import (
	"math"

	"github.com/rs/zerolog"

	"honnef.co/go/grim/internal/wire"
)

// CaptureResult is one composited or per-output capture: tightly packed
// 8-bit-per-channel RGBA with row stride 4*Width.
type CaptureResult struct {
	Data   []byte
	Width  int32
	Height int32
}

// MultiOutputCaptureResult maps output name to its own CaptureResult, as
// returned by CaptureOutputs[WithScale]. Keys are unique; callers must not
// rely on any ordering.
type MultiOutputCaptureResult map[string]CaptureResult

// CaptureParameters selects one output and an optional physical-pixel
// sub-region within it for CaptureOutputs[WithScale].
type CaptureParameters struct {
	OutputName    string
	Region        *Rect
	OverlayCursor bool
}

// Option configures a Grim session at construction time.
type Option func(*Grim)

// WithLogger attaches a zerolog.Logger that receives debug-level events
// for wl_shm formats other than ARGB8888/XRGB8888 and for linux-dmabuf
// frame events ignored during single-output captures. Unknown screencopy
// event opcodes are dropped without logging, and dispatch errors are
// returned to the caller rather than logged. The default is a disabled
// logger, matching an embedding application's expectation that a library
// stays silent unless asked.
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Grim) { g.logger = logger }
}

// Grim is one wire session plus its discovered output registry. It is not
// safe for concurrent use: §5 specifies the capture pipeline as
// single-threaded cooperative, and a Grim is a mutable resource shared by
// exactly the goroutine that created it.
type Grim struct {
	conn   *wire.Conn
	reg    *registry
	logger zerolog.Logger
}

// New connects to the compositor named by $WAYLAND_DISPLAY (or
// $XDG_RUNTIME_DIR's default), binds the required globals, and performs
// the initial output discovery round-trip.
func New(opts ...Option) (*Grim, error) {
	conn, err := wire.Connect()
	if err != nil {
		return nil, wrapErr(WaylandConnection, "connect to compositor", err)
	}
	g := &Grim{conn: conn, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(g)
	}
	g.reg = newRegistry(conn, g.logger)
	if err := g.reg.bindGlobals(); err != nil {
		conn.Close()
		return nil, err
	}
	if err := g.reg.refreshOutputs(); err != nil {
		conn.Close()
		return nil, err
	}
	return g, nil
}

// Close releases the underlying wire connection. The Grim must not be
// used afterward.
func (g *Grim) Close() error {
	return g.conn.Close()
}

// GetOutputs returns every discovered output after a fresh refresh, per
// §4.1's idempotence contract: each public capture call refreshes the
// registry first.
func (g *Grim) GetOutputs() ([]OutputInfo, error) {
	if err := g.reg.refreshOutputs(); err != nil {
		return nil, err
	}
	return g.reg.getOutputs()
}

// CaptureAll composites every output into one logical-space image.
func (g *Grim) CaptureAll() (CaptureResult, error) {
	return g.CaptureAllWithScale(1.0)
}

// CaptureAllWithScale composites every output and then resamples the
// result by scale (scale == 1.0 is a no-op).
func (g *Grim) CaptureAllWithScale(scale float64) (CaptureResult, error) {
	if err := g.reg.refreshOutputs(); err != nil {
		return CaptureResult{}, err
	}
	box, err := g.allOutputsBoundingBox()
	if err != nil {
		return CaptureResult{}, err
	}
	img, err := g.compositeRegion(box, false)
	if err != nil {
		return CaptureResult{}, err
	}
	return finishImage(img, scale)
}

// CaptureOutput captures one named output's full framebuffer, unresampled
// beyond the post-scale factor.
func (g *Grim) CaptureOutput(name string) (CaptureResult, error) {
	return g.CaptureOutputWithScale(name, 1.0)
}

// CaptureOutputWithScale captures a named output's full framebuffer and
// resamples it by scale.
func (g *Grim) CaptureOutputWithScale(name string, scale float64) (CaptureResult, error) {
	if err := g.reg.refreshOutputs(); err != nil {
		return CaptureResult{}, err
	}
	raw, err := g.captureOutputFull(name, false)
	if err != nil {
		return CaptureResult{}, err
	}
	img := rgbaImage{Pixels: raw.pixels, Width: raw.width, Height: raw.height}
	return finishImage(img, scale)
}

// CaptureRegion composites the outputs intersecting a logical-coordinate
// region into a single image sized to that region.
func (g *Grim) CaptureRegion(region Rect) (CaptureResult, error) {
	return g.CaptureRegionWithScale(region, 1.0)
}

// CaptureRegionWithScale composites a logical-coordinate region and
// resamples the result by scale.
func (g *Grim) CaptureRegionWithScale(region Rect, scale float64) (CaptureResult, error) {
	if err := g.reg.refreshOutputs(); err != nil {
		return CaptureResult{}, err
	}
	img, err := g.compositeRegion(region, false)
	if err != nil {
		return CaptureResult{}, err
	}
	return finishImage(img, scale)
}

// CaptureOutputs captures a list of outputs with individual sub-regions
// and cursor-overlay flags, returning a per-output map with no
// compositing or resampling.
func (g *Grim) CaptureOutputs(params []CaptureParameters) (MultiOutputCaptureResult, error) {
	return g.CaptureOutputsWithScale(params, 1.0)
}

// CaptureOutputsWithScale is CaptureOutputs followed by a post-scale
// resample. Per §9's open question, the same scale is applied uniformly
// to every output's capture — not each output's own effective scale. This
// mirrors the original source's behavior and is documented here as a
// known limitation rather than silently "fixed".
func (g *Grim) CaptureOutputsWithScale(params []CaptureParameters, scale float64) (MultiOutputCaptureResult, error) {
	if err := g.reg.refreshOutputs(); err != nil {
		return nil, err
	}
	raws, err := g.captureOutputsBatch(params)
	if err != nil {
		return nil, err
	}
	out := make(MultiOutputCaptureResult, len(raws))
	for name, raw := range raws {
		img := rgbaImage{Pixels: raw.pixels, Width: raw.width, Height: raw.height}
		result, err := finishImage(img, scale)
		if err != nil {
			return nil, err
		}
		out[name] = result
	}
	return out, nil
}

// GreatestScaleForRegion returns the maximum effective scale across every
// output intersecting region, or across all outputs when region is nil.
// The result is always finite and >= 1.0; a region disjoint from every
// output fails with InvalidRegion.
func (g *Grim) GreatestScaleForRegion(region *Rect) (float64, error) {
	if err := g.reg.refreshOutputs(); err != nil {
		return 0, err
	}
	best := 0.0
	matched := false
	for _, st := range g.reg.outputs {
		if region != nil {
			outputBox := Rect{X: st.logicalPos[0], Y: st.logicalPos[1], Width: st.logicalSize[0], Height: st.logicalSize[1]}
			if _, ok := outputBox.Intersection(*region); !ok {
				continue
			}
		}
		matched = true
		if s := st.effectiveScale(); s > best {
			best = s
		}
	}
	if !matched {
		return 0, newErr(InvalidRegion, "region does not intersect any output")
	}
	if best < 1.0 {
		best = 1.0
	}
	return best, nil
}

// finishImage applies an optional post-scale resample and packages the
// result as a CaptureResult.
func finishImage(img rgbaImage, scale float64) (CaptureResult, error) {
	if math.IsNaN(scale) || math.IsInf(scale, 0) {
		return CaptureResult{}, newErr(ScalingFailed, "scale factor must be finite")
	}
	if scale != 1.0 {
		var err error
		img, err = scaleImageData(img, scale)
		if err != nil {
			return CaptureResult{}, err
		}
	}
	return CaptureResult{Data: img.Pixels, Width: img.Width, Height: img.Height}, nil
}
