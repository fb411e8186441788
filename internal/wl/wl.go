// Package wl binds the small slice of the core Wayland protocol grim needs:
// wl_registry, wl_compositor, wl_shm, wl_shm_pool, wl_buffer and wl_output.
//
// The shape follows the teacher (honnef.co/go/libwayland): each bound
// protocol object is a struct wrapping its id plus exported On* func fields
// that the owner assigns to receive events. Only the objects grim destroys
// (ShmPool, Buffer) have a Destroy method; Buffer.Destroy also forgets the
// object with the connection. The teacher gets this for free
// from libwayland's event loop via cgo; here the wire.Conn dispatch table
// plays that role instead.
package wl

import "honnef.co/go/grim/internal/wire"

// Registry is the wl_registry singleton obtained from GetRegistry.
type Registry struct {
	conn *wire.Conn
	id   wire.ObjectID

	OnGlobal       func(name uint32, iface string, version uint32)
	OnGlobalRemove func(name uint32)
}

// GetRegistry sends wl_display.get_registry (opcode 1 on object 1) and
// returns the bound registry, wired to receive its events.
func GetRegistry(conn *wire.Conn) *Registry {
	id := conn.AllocID()
	r := &Registry{conn: conn, id: id}
	conn.Bind(id, r.dispatch)

	enc := wire.NewEncoder()
	enc.PutNewID(id)
	conn.Send(enc.Build(1, 1))
	return r
}

func (r *Registry) ID() wire.ObjectID { return r.id }

func (r *Registry) dispatch(msg *wire.Message) {
	dec := wire.NewDecoder(msg.Args, msg.FDs)
	switch msg.Opcode {
	case 0: // global(name, interface, version)
		name, err := dec.Uint32()
		if err != nil {
			return
		}
		iface, err := dec.String()
		if err != nil {
			return
		}
		version, err := dec.Uint32()
		if err != nil {
			return
		}
		if r.OnGlobal != nil {
			r.OnGlobal(name, iface, version)
		}
	case 1: // global_remove(name)
		name, err := dec.Uint32()
		if err != nil {
			return
		}
		if r.OnGlobalRemove != nil {
			r.OnGlobalRemove(name)
		}
	}
}

// Bind issues wl_registry.bind(name, id: new_id<interface,version>) and
// returns the freshly allocated object id for the bound global.
func (r *Registry) Bind(name uint32, iface string, version uint32) wire.ObjectID {
	id := r.conn.AllocID()
	enc := wire.NewEncoder()
	enc.PutUint32(name)
	enc.PutString(iface)
	enc.PutUint32(version)
	enc.PutNewID(id)
	r.conn.Send(enc.Build(r.id, 0))
	return id
}

// Compositor is wl_compositor. grim never creates surfaces (it has no
// on-screen presence), so only the binding itself is kept — it exists
// purely to satisfy §4.1's "required globals" contract and to mirror the
// teacher's Compositor type.
type Compositor struct {
	conn *wire.Conn
	id   wire.ObjectID
}

func BindCompositor(conn *wire.Conn, reg *Registry, name, version uint32) *Compositor {
	id := reg.Bind(name, "wl_compositor", version)
	return &Compositor{conn: conn, id: id}
}

func (c *Compositor) ID() wire.ObjectID { return c.id }

// Shm is wl_shm: the factory for shared-memory-backed buffers.
type Shm struct {
	conn *wire.Conn
	id   wire.ObjectID

	OnFormat func(format uint32)
}

func BindShm(conn *wire.Conn, reg *Registry, name, version uint32) *Shm {
	id := reg.Bind(name, "wl_shm", version)
	s := &Shm{conn: conn, id: id}
	conn.Bind(id, s.dispatch)
	return s
}

func (s *Shm) ID() wire.ObjectID { return s.id }

func (s *Shm) dispatch(msg *wire.Message) {
	if msg.Opcode != 0 { // format(format: uint)
		return
	}
	dec := wire.NewDecoder(msg.Args, msg.FDs)
	format, err := dec.Uint32()
	if err != nil {
		return
	}
	if s.OnFormat != nil {
		s.OnFormat(format)
	}
}

// CreatePool issues wl_shm.create_pool(id: new_id, fd: fd, size: int),
// passing fd via SCM_RIGHTS.
func (s *Shm) CreatePool(fd int, size int32) *ShmPool {
	id := s.conn.AllocID()
	enc := wire.NewEncoder()
	enc.PutNewID(id)
	enc.PutFD(fd)
	enc.PutInt32(size)
	s.conn.Send(enc.Build(s.id, 0))
	return &ShmPool{conn: s.conn, id: id}
}

// ShmPool is wl_shm_pool.
type ShmPool struct {
	conn *wire.Conn
	id   wire.ObjectID
}

func (p *ShmPool) ID() wire.ObjectID { return p.id }

// CreateBuffer issues wl_shm_pool.create_buffer.
func (p *ShmPool) CreateBuffer(offset, width, height, stride int32, format uint32) *Buffer {
	id := p.conn.AllocID()
	enc := wire.NewEncoder()
	enc.PutNewID(id)
	enc.PutInt32(offset)
	enc.PutInt32(width)
	enc.PutInt32(height)
	enc.PutInt32(stride)
	enc.PutUint32(format)
	p.conn.Send(enc.Build(p.id, 0))
	return &Buffer{conn: p.conn, id: id}
}

// Destroy issues wl_shm_pool.destroy (opcode 1).
func (p *ShmPool) Destroy() {
	enc := wire.NewEncoder()
	p.conn.Send(enc.Build(p.id, 1))
}

// Buffer is wl_buffer: a client-allocated shared-memory-backed frame
// target.
type Buffer struct {
	conn *wire.Conn
	id   wire.ObjectID
}

func (b *Buffer) ID() wire.ObjectID { return b.id }

// Destroy issues wl_buffer.destroy (opcode 0) and forgets the object.
func (b *Buffer) Destroy() {
	enc := wire.NewEncoder()
	b.conn.Send(enc.Build(b.id, 0))
	b.conn.Forget(b.id)
}

// Output is wl_output: one display the compositor advertises. Event fields
// mirror §4.2's event handlers.
type Output struct {
	conn *wire.Conn
	id   wire.ObjectID

	OnGeometry    func(x, y int32, transform uint32)
	OnMode        func(width, height int32)
	OnScale       func(factor int32)
	OnName        func(name string)
	OnDescription func(description string)
	OnDone        func()
}

func BindOutput(conn *wire.Conn, reg *Registry, name, version uint32) *Output {
	id := reg.Bind(name, "wl_output", version)
	o := &Output{conn: conn, id: id}
	conn.Bind(id, o.dispatch)
	return o
}

func (o *Output) ID() wire.ObjectID { return o.id }

func (o *Output) dispatch(msg *wire.Message) {
	dec := wire.NewDecoder(msg.Args, msg.FDs)
	switch msg.Opcode {
	case 0: // geometry(x, y, physical_width, physical_height, subpixel, make, model, transform)
		x, err := dec.Int32()
		if err != nil {
			return
		}
		y, err := dec.Int32()
		if err != nil {
			return
		}
		if _, err := dec.Int32(); err != nil { // physical_width (unused: mode carries authoritative size)
			return
		}
		if _, err := dec.Int32(); err != nil { // physical_height
			return
		}
		if _, err := dec.Int32(); err != nil { // subpixel
			return
		}
		if _, err := dec.String(); err != nil { // make
			return
		}
		if _, err := dec.String(); err != nil { // model
			return
		}
		transform, err := dec.Uint32()
		if err != nil {
			return
		}
		if o.OnGeometry != nil {
			o.OnGeometry(x, y, transform)
		}
	case 1: // mode(flags, width, height, refresh)
		if _, err := dec.Uint32(); err != nil { // flags
			return
		}
		width, err := dec.Int32()
		if err != nil {
			return
		}
		height, err := dec.Int32()
		if err != nil {
			return
		}
		if o.OnMode != nil {
			o.OnMode(width, height)
		}
	case 2: // done()
		if o.OnDone != nil {
			o.OnDone()
		}
	case 3: // scale(factor)
		factor, err := dec.Int32()
		if err != nil {
			return
		}
		if o.OnScale != nil {
			o.OnScale(factor)
		}
	case 4: // name(name)
		name, err := dec.String()
		if err != nil {
			return
		}
		if o.OnName != nil {
			o.OnName(name)
		}
	case 5: // description(description)
		desc, err := dec.String()
		if err != nil {
			return
		}
		if o.OnDescription != nil {
			o.OnDescription(desc)
		}
	}
}
