package grim

import (
	"fmt"

	"github.com/rs/zerolog"

	"honnef.co/go/grim/internal/screencopy"
	"honnef.co/go/grim/internal/wire"
	"honnef.co/go/grim/internal/wl"
	"honnef.co/go/grim/internal/xdgoutput"
)

const (
	wlShmFormatARGB8888 = 0
	wlShmFormatXRGB8888 = 1
)

// OutputInfo is the public, frozen-between-calls view of one output, as
// returned by GetOutputs.
type OutputInfo struct {
	Name         string
	Description  string
	PhysicalPos  [2]int32
	PhysicalSize [2]int32
	IntegerScale int32
	Transform    Transform
	LogicalPos   [2]int32
	LogicalSize  [2]int32
	// EffectiveScale is LogicalScale when known, else IntegerScale as a
	// float, matching §4.5 step 3's scale-selection rule.
	EffectiveScale float64
}

// outputState is the mutable, in-progress record the registry maintains
// for one output between discovery events. It is frozen into an
// OutputInfo once refreshOutputs completes.
type outputState struct {
	wlID      wire.ObjectID
	handle    *wl.Output
	xdgHandle *xdgoutput.Output

	name        string
	description string

	physicalPos  [2]int32
	physicalSize [2]int32
	integerScale int32
	transform    Transform

	logicalPos        [2]int32
	logicalSize       [2]int32
	logicalScaleKnown bool
	logicalScale      float64
}

func newOutputState(id wire.ObjectID, handle *wl.Output) *outputState {
	return &outputState{wlID: id, handle: handle, integerScale: 1}
}

// recomputeLogicalScale applies §3's logical-scale derivation rule once a
// physical size and (mirrored or real) logical size are both known.
func (o *outputState) recomputeLogicalScale() {
	physMajor, _ := applyOutputTransform(o.transform, o.physicalSize[0], o.physicalSize[1])
	logMajor, _ := applyOutputTransform(o.transform, o.logicalSize[0], o.logicalSize[1])
	if logMajor == 0 {
		return
	}
	o.logicalScale = float64(physMajor) / float64(logMajor)
}

func (o *outputState) effectiveScale() float64 {
	if o.logicalScaleKnown && o.logicalScale > 0 {
		return o.logicalScale
	}
	return float64(o.integerScale)
}

func (o *outputState) freeze() OutputInfo {
	return OutputInfo{
		Name:           o.name,
		Description:    o.description,
		PhysicalPos:    o.physicalPos,
		PhysicalSize:   o.physicalSize,
		IntegerScale:   o.integerScale,
		Transform:      o.transform,
		LogicalPos:     o.logicalPos,
		LogicalSize:    o.logicalSize,
		EffectiveScale: o.effectiveScale(),
	}
}

// registry tracks discovered globals and outputs for one wire session.
//
// The cyclic registry/xdg-output relationship (an output owns its
// xdg-output handle; an xdg-output event handler must find its parent
// output) is resolved here by closing each xdg-output's event callbacks
// directly over the owning *outputState rather than routing through a
// second id-keyed lookup: Go's garbage collector removes the ownership
// hazard that motivates keeping the two id spaces apart in the original
// source, so there is no back-pointer to avoid.
type registry struct {
	conn   *wire.Conn
	logger zerolog.Logger

	wlReg         *wl.Registry
	compositor    *wl.Compositor
	shm           *wl.Shm
	screencopyMgr *screencopy.Manager
	xdgOutputMgr  *xdgoutput.Manager

	outputs map[wire.ObjectID]*outputState
}

func newRegistry(conn *wire.Conn, logger zerolog.Logger) *registry {
	return &registry{
		conn:    conn,
		logger:  logger,
		outputs: make(map[wire.ObjectID]*outputState),
	}
}

// bindGlobals performs the single synchronous round-trip §4.1 requires:
// get_registry, observe every advertised global, bind the ones grim needs,
// and fail if a required one never appeared.
func (r *registry) bindGlobals() error {
	r.wlReg = wl.GetRegistry(r.conn)
	r.wlReg.OnGlobal = r.handleGlobal
	r.wlReg.OnGlobalRemove = r.handleGlobalRemove

	if err := r.conn.Roundtrip(); err != nil {
		return wrapErr(WaylandConnection, "initial round-trip failed", err)
	}
	if r.shm == nil {
		return newErr(UnsupportedProtocol, "compositor does not advertise wl_shm")
	}
	if r.screencopyMgr == nil {
		return newErr(UnsupportedProtocol, "compositor does not advertise zwlr_screencopy_manager_v1")
	}
	return nil
}

func (r *registry) handleGlobal(name uint32, iface string, version uint32) {
	switch iface {
	case "wl_compositor":
		r.compositor = wl.BindCompositor(r.conn, r.wlReg, name, version)
	case "wl_shm":
		r.shm = wl.BindShm(r.conn, r.wlReg, name, version)
		r.shm.OnFormat = func(format uint32) {
			if format != wlShmFormatARGB8888 && format != wlShmFormatXRGB8888 {
				r.logger.Debug().Uint32("format", format).Msg("wl_shm advertised unrequired pixel format")
			}
		}
	case "zwlr_screencopy_manager_v1":
		r.screencopyMgr = screencopy.Bind(r.conn, r.wlReg, name, version)
	case "zxdg_output_manager_v1":
		r.xdgOutputMgr = xdgoutput.Bind(r.conn, r.wlReg, name, version)
		// A new output bound earlier, before the manager existed, gets
		// its xdg-output requested now, per §4.2.
		for _, st := range r.outputs {
			if st.xdgHandle == nil {
				r.requestXdgOutput(st)
			}
		}
	case "wl_output":
		handle := wl.BindOutput(r.conn, r.wlReg, name, version)
		st := newOutputState(handle.ID(), handle)
		r.outputs[handle.ID()] = st
		r.wireOutputEvents(st)
		if r.xdgOutputMgr != nil {
			r.requestXdgOutput(st)
		}
	}
}

func (r *registry) handleGlobalRemove(name uint32) {
	// Outputs are keyed by wl_output object id, not registry name, in
	// this registry; removal by name is not tracked since grim's capture
	// calls are each preceded by a fresh refreshOutputs.
}

func (r *registry) requestXdgOutput(st *outputState) {
	xdg := r.xdgOutputMgr.GetXdgOutput(st.wlID)
	st.xdgHandle = xdg
	xdg.OnLogicalPosition = func(x, y int32) {
		st.logicalPos = [2]int32{x, y}
		st.logicalScaleKnown = true
		st.recomputeLogicalScale()
	}
	xdg.OnLogicalSize = func(w, h int32) {
		st.logicalSize = [2]int32{w, h}
		st.logicalScaleKnown = true
		st.recomputeLogicalScale()
	}
	xdg.OnDone = func() {
		st.logicalScaleKnown = true
		st.recomputeLogicalScale()
	}
	xdg.OnName = func(name string) {
		if st.name == "" {
			st.name = name
		}
	}
	xdg.OnDescription = func(description string) {
		if st.description == "" {
			st.description = description
		}
	}
}

func (r *registry) wireOutputEvents(st *outputState) {
	st.handle.OnGeometry = func(x, y int32, transform uint32) {
		st.physicalPos = [2]int32{x, y}
		st.transform = transformFromWire(transform)
		if !st.logicalScaleKnown {
			st.logicalPos = st.physicalPos
		}
	}
	st.handle.OnMode = func(width, height int32) {
		st.physicalSize = [2]int32{width, height}
		if !st.logicalScaleKnown {
			w, h := applyOutputTransform(st.transform, width, height)
			st.logicalSize = [2]int32{w / maxI32(st.integerScale, 1), h / maxI32(st.integerScale, 1)}
		}
	}
	st.handle.OnScale = func(factor int32) {
		st.integerScale = factor
		if !st.logicalScaleKnown {
			st.recomputeLogicalScale()
		}
	}
	st.handle.OnName = func(name string) {
		st.name = name
	}
	st.handle.OnDescription = func(description string) {
		st.description = description
	}
}

func maxI32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

// refreshOutputs implements §4.1's idempotence contract: clear discovered
// state, perform a fresh registry round-trip, then two more round-trips to
// drain output/xdg-output events the compositor emits asynchronously
// after binding. Finally, fill any still-missing logical geometry using
// the §3 guess rule.
func (r *registry) refreshOutputs() error {
	r.outputs = make(map[wire.ObjectID]*outputState)

	r.wlReg = wl.GetRegistry(r.conn)
	r.wlReg.OnGlobal = r.handleGlobal
	r.wlReg.OnGlobalRemove = r.handleGlobalRemove

	if err := r.conn.Roundtrip(); err != nil {
		return wrapErr(WaylandConnection, "registry round-trip failed", err)
	}
	for i := 0; i < 2; i++ {
		if err := r.conn.Roundtrip(); err != nil {
			return wrapErr(WaylandConnection, "output drain round-trip failed", err)
		}
	}

	for _, st := range r.outputs {
		if !st.logicalScaleKnown {
			w, h := applyOutputTransform(st.transform, st.physicalSize[0], st.physicalSize[1])
			scale := maxI32(st.integerScale, 1)
			st.logicalSize = [2]int32{w / scale, h / scale}
			st.logicalPos = st.physicalPos
			st.recomputeLogicalScale()
		}
		if st.physicalSize[0] <= 0 || st.physicalSize[1] <= 0 || st.logicalSize[0] <= 0 || st.logicalSize[1] <= 0 {
			return newErr(NoOutputs, fmt.Sprintf("output %q has non-positive geometry after refresh", st.name))
		}
	}
	return nil
}

// getOutputs returns the frozen view of every discovered output, carrying
// both physical and logical geometry. Without an xdg-output, the logical
// position equals the physical one and the logical size is the physical
// size divided by the integer scale (swapped for 90°/270° transforms).
func (r *registry) getOutputs() ([]OutputInfo, error) {
	if len(r.outputs) == 0 {
		return nil, newErr(NoOutputs, "no outputs discovered")
	}
	out := make([]OutputInfo, 0, len(r.outputs))
	for _, st := range r.outputs {
		out = append(out, st.freeze())
	}
	return out, nil
}

func (r *registry) findByName(name string) (*outputState, error) {
	for _, st := range r.outputs {
		if st.name == name {
			return st, nil
		}
	}
	return nil, newErr(OutputNotFound, fmt.Sprintf("output %q not found", name))
}
