package grim

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"honnef.co/go/grim/internal/screencopy"
	"honnef.co/go/grim/internal/wire"
	"honnef.co/go/grim/internal/wl"
)

// maxAttempts bounds each of the two per-frame polling loops (§4.3, §9):
// a fairness bound on dispatch cycles without progress, never a
// wall-clock timeout.
const maxAttempts = 100

// yInvertFlag is bit 0 of the screencopy-frame Flags event.
const yInvertFlag = 1

// frameState is the mutable record an in-flight frame's events populate.
// It is reachable both from the polling loop (the caller) and from event
// dispatch callbacks invoked by Conn.DispatchOne on the same goroutine, so
// in this single-threaded-cooperative design the mutex exists only
// because the callback cannot statically prove it runs on the caller's
// stack; holding time is always a single field update.
type frameState struct {
	mu sync.Mutex

	bufferAnnounced bool
	width           uint32
	height          uint32
	stride          uint32
	format          uint32

	flags uint32

	ready  bool
	failed bool
}

func (s *frameState) withLock(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f()
}

// rawCapture is one output's freshly-copied, byte-normalised but
// not-yet-transformed bitmap.
type rawCapture struct {
	pixels        []byte
	width, height int32
}

// captureRegionForOutput drives the five-state machine of §4.3 to
// completion for a single physical sub-rectangle of one output, returning
// a normalised (byte-order fixed, transform+flip applied) RGBA bitmap.
func (g *Grim) captureRegionForOutput(outputWlID wire.ObjectID, transform Transform, x, y, width, height int32, overlayCursor bool) (rawCapture, error) {
	if width <= 0 || height <= 0 || x < 0 || y < 0 {
		return rawCapture{}, newErr(InvalidRegion, fmt.Sprintf("invalid capture region %d,%d %dx%d", x, y, width, height))
	}

	state := &frameState{}
	frame := g.reg.screencopyMgr.CaptureOutputRegion(outputWlID, overlayCursor, x, y, width, height)
	frame.OnBuffer = func(spec screencopy.BufferSpec) {
		state.withLock(func() {
			state.width = spec.Width
			state.height = spec.Height
			state.stride = spec.Stride
			state.format = spec.Format
			state.bufferAnnounced = true
		})
	}
	frame.OnFailed = func() {
		state.withLock(func() { state.failed = true })
	}
	frame.OnFlags = func(flags uint32) {
		state.withLock(func() { state.flags = flags })
	}
	frame.OnReady = func(uint32, uint32, uint32) {
		state.withLock(func() { state.ready = true })
	}
	frame.OnLinuxDmabuf = func(format, w, h uint32) {
		g.logger.Debug().Uint32("format", format).Uint32("width", w).Uint32("height", h).Msg("screencopy linux-dmabuf event ignored")
	}

	// First loop: wait for the buffer descriptor (or failure).
	for attempt := 0; ; attempt++ {
		var announced, failed bool
		state.withLock(func() { announced, failed = state.bufferAnnounced, state.failed })
		if failed {
			frame.Destroy()
			return rawCapture{}, newErr(CaptureFailed, "compositor reported capture failure")
		}
		if announced {
			break
		}
		if attempt >= maxAttempts {
			frame.Destroy()
			return rawCapture{}, newErr(FrameCapture, "timed out waiting for buffer descriptor")
		}
		if err := g.conn.DispatchOne(); err != nil {
			return rawCapture{}, wrapErr(FrameCapture, "dispatch failed while awaiting buffer descriptor", err)
		}
	}

	var spec screencopy.BufferSpec
	state.withLock(func() {
		spec = screencopy.BufferSpec{Format: state.format, Width: state.width, Height: state.height, Stride: state.stride}
	})

	backing, err := newShmBacking(spec.Width, spec.Stride, spec.Height)
	if err != nil {
		frame.Destroy()
		return rawCapture{}, err
	}
	defer backing.release()

	pool := g.reg.shm.CreatePool(backing.fd, int32(backing.size))
	buf := pool.CreateBuffer(0, int32(spec.Width), int32(spec.Height), int32(spec.Stride), spec.Format)
	pool.Destroy()

	frame.Copy(buf.ID())

	// Second loop: wait for Ready (or failure).
	for attempt := 0; ; attempt++ {
		var ready, failed bool
		state.withLock(func() { ready, failed = state.ready, state.failed })
		if failed {
			buf.Destroy()
			frame.Destroy()
			return rawCapture{}, newErr(CaptureFailed, "compositor reported capture failure")
		}
		if ready {
			break
		}
		if attempt >= maxAttempts {
			buf.Destroy()
			frame.Destroy()
			return rawCapture{}, newErr(FrameCapture, "timed out waiting for frame ready")
		}
		if err := g.conn.DispatchOne(); err != nil {
			return rawCapture{}, wrapErr(FrameCapture, "dispatch failed while awaiting ready", err)
		}
	}

	var flags uint32
	state.withLock(func() { flags = state.flags })

	pixels := normalizeBytes(backing.mapping, spec.Format)
	img := rgbaImage{Pixels: pixels, Width: int32(spec.Width), Height: int32(spec.Height)}

	if transform != TransformNormal {
		img = applyImageTransform(img, transform)
	}
	if flags&yInvertFlag != 0 {
		img = flipVertical(img)
	}

	buf.Destroy()
	frame.Destroy()

	return rawCapture{pixels: img.Pixels, width: img.Width, height: img.Height}, nil
}

// normalizeBytes copies the shared mapping into an owned slice, rewriting
// bytes per §4.3's byte-normalisation rule: XRGB8888 (BGRA on the wire)
// swaps bytes 0 and 2 and forces alpha to 255; ARGB8888 passes through;
// any other format passes through untouched.
func normalizeBytes(mapping []byte, format uint32) []byte {
	out := make([]byte, len(mapping))
	copy(out, mapping)
	if format == wlShmFormatXRGB8888 {
		for i := 0; i+3 < len(out); i += 4 {
			out[i], out[i+2] = out[i+2], out[i]
			out[i+3] = 255
		}
	}
	return out
}

// shmBacking is the temporary-file-backed, memory-mapped buffer used to
// negotiate one frame's shared-memory pool, per §4.3's "Shared-memory
// backing" paragraph. The file is unlinked immediately after creation so
// its only reference is the held descriptor; the mapping and descriptor
// are released together by release.
type shmBacking struct {
	file    *os.File
	fd      int
	size    uint64
	mapping []byte
}

func newShmBacking(width, stride, height uint32) (*shmBacking, error) {
	strideU := uint64(stride)
	size, err := checkedBufferSize(uint64(width), uint64(height), 4, &strideU)
	if err != nil {
		return nil, err
	}
	f, err := os.CreateTemp("", "grim-shm-*")
	if err != nil {
		return nil, wrapErr(BufferCreation, "create temp file", err)
	}
	os.Remove(f.Name())

	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, wrapErr(BufferCreation, "truncate temp file", err)
	}
	mapping, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, wrapErr(BufferCreation, "mmap temp file", err)
	}
	return &shmBacking{file: f, fd: int(f.Fd()), size: size, mapping: mapping}, nil
}

func (b *shmBacking) release() {
	unix.Munmap(b.mapping)
	b.file.Close()
}

// batchFrame tracks one output's in-flight frame within a captureOutputsBatch
// call.
type batchFrame struct {
	name      string
	transform Transform

	state   *frameState
	frame   *screencopy.Frame
	buf     *wl.Buffer
	backing *shmBacking
}

// captureOutputsBatch implements §4.5's capture_outputs: it issues every
// frame request up front, polls for buffer descriptors across the whole
// set under a single attempt bound, allocates backings and issues copies,
// then polls for Ready across the whole set under a second single bound.
// Any sub-frame failure fails the entire call.
func (g *Grim) captureOutputsBatch(params []CaptureParameters) (map[string]rawCapture, error) {
	batch := make([]*batchFrame, 0, len(params))
	defer func() {
		for _, bf := range batch {
			if bf.backing != nil {
				bf.backing.release()
			}
		}
	}()

	for _, p := range params {
		st, err := g.reg.findByName(p.OutputName)
		if err != nil {
			return nil, err
		}
		x, y, w, h := int32(0), int32(0), st.physicalSize[0], st.physicalSize[1]
		if p.Region != nil {
			r := *p.Region
			if r.X < 0 || r.Y < 0 || r.Width <= 0 || r.Height <= 0 ||
				r.X+r.Width > st.physicalSize[0] || r.Y+r.Height > st.physicalSize[1] {
				return nil, newErr(InvalidRegion, fmt.Sprintf("region exceeds output %q bounds", p.OutputName))
			}
			x, y, w, h = r.X, r.Y, r.Width, r.Height
		}

		state := &frameState{}
		frame := g.reg.screencopyMgr.CaptureOutputRegion(st.wlID, p.OverlayCursor, x, y, w, h)
		frame.OnBuffer = func(spec screencopy.BufferSpec) {
			state.withLock(func() {
				state.width, state.height, state.stride, state.format = spec.Width, spec.Height, spec.Stride, spec.Format
				state.bufferAnnounced = true
			})
		}
		frame.OnFailed = func() { state.withLock(func() { state.failed = true }) }
		frame.OnFlags = func(flags uint32) { state.withLock(func() { state.flags = flags }) }
		frame.OnReady = func(uint32, uint32, uint32) { state.withLock(func() { state.ready = true }) }

		batch = append(batch, &batchFrame{
			name: p.OutputName, transform: st.transform, state: state, frame: frame,
		})
	}

	for attempt := 0; ; attempt++ {
		allDone := true
		for _, bf := range batch {
			var announced, failed bool
			bf.state.withLock(func() { announced, failed = bf.state.bufferAnnounced, bf.state.failed })
			if failed {
				return nil, newErr(CaptureFailed, fmt.Sprintf("compositor reported capture failure for output %q", bf.name))
			}
			if !announced {
				allDone = false
			}
		}
		if allDone {
			break
		}
		if attempt >= maxAttempts {
			return nil, newErr(FrameCapture, "timed out waiting for buffer descriptors")
		}
		if err := g.conn.DispatchOne(); err != nil {
			return nil, wrapErr(FrameCapture, "dispatch failed while awaiting buffer descriptors", err)
		}
	}

	for _, bf := range batch {
		var spec screencopy.BufferSpec
		bf.state.withLock(func() {
			spec = screencopy.BufferSpec{Format: bf.state.format, Width: bf.state.width, Height: bf.state.height, Stride: bf.state.stride}
		})
		backing, err := newShmBacking(spec.Width, spec.Stride, spec.Height)
		if err != nil {
			return nil, err
		}
		bf.backing = backing
		pool := g.reg.shm.CreatePool(backing.fd, int32(backing.size))
		buf := pool.CreateBuffer(0, int32(spec.Width), int32(spec.Height), int32(spec.Stride), spec.Format)
		pool.Destroy()
		bf.buf = buf
		bf.frame.Copy(buf.ID())
	}

	for attempt := 0; ; attempt++ {
		allDone := true
		for _, bf := range batch {
			var ready, failed bool
			bf.state.withLock(func() { ready, failed = bf.state.ready, bf.state.failed })
			if failed {
				return nil, newErr(CaptureFailed, fmt.Sprintf("compositor reported capture failure for output %q", bf.name))
			}
			if !ready {
				allDone = false
			}
		}
		if allDone {
			break
		}
		if attempt >= maxAttempts {
			return nil, newErr(FrameCapture, "timed out waiting for frame ready")
		}
		if err := g.conn.DispatchOne(); err != nil {
			return nil, wrapErr(FrameCapture, "dispatch failed while awaiting ready", err)
		}
	}

	out := make(map[string]rawCapture, len(batch))
	for _, bf := range batch {
		var flags uint32
		var format uint32
		var width, height uint32
		bf.state.withLock(func() { flags, format, width, height = bf.state.flags, bf.state.format, bf.state.width, bf.state.height })

		pixels := normalizeBytes(bf.backing.mapping, format)
		img := rgbaImage{Pixels: pixels, Width: int32(width), Height: int32(height)}
		if bf.transform != TransformNormal {
			img = applyImageTransform(img, bf.transform)
		}
		if flags&yInvertFlag != 0 {
			img = flipVertical(img)
		}

		bf.buf.Destroy()
		bf.frame.Destroy()

		out[bf.name] = rawCapture{pixels: img.Pixels, width: img.Width, height: img.Height}
	}
	return out, nil
}
