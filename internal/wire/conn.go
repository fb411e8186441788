package wire

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// ErrNoSocket is returned by Connect when neither an explicit address nor
// the environment identifies a compositor socket.
var ErrNoSocket = errors.New("wire: no Wayland socket found")

// ErrClosed is returned by operations on a Conn after Close.
var ErrClosed = errors.New("wire: connection closed")

const maxMessageSize = 1 << 16

// Handler is invoked once per decoded event, before DispatchOne returns control
// to the caller. It must not block.
type Handler func(msg *Message)

// Conn owns exactly one connection to a Wayland compositor and exactly one
// read/write path over it. Mirrors the teacher's single-threaded-cooperative
// Display: it is driven only by the goroutine that created it.
//
// Unlike the teacher (which hands dispatch off to libwayland's C event loop
// via wl_proxy_add_dispatcher), Conn has no cgo layer to delegate to, so it
// owns wire framing and fd-passing itself.
type Conn struct {
	conn     *net.UnixConn
	connFile *os.File

	nextID atomic.Uint32

	mu        sync.Mutex
	closed    bool
	callbacks map[ObjectID]chan uint32
	handlers  map[ObjectID]Handler
	lastErr   error

	readBuf []byte
}

// Connect dials the compositor socket named by $WAYLAND_DISPLAY under
// $XDG_RUNTIME_DIR (defaulting to "wayland-0"), exactly as the teacher's
// wl_display_connect(NULL) does under the hood.
func Connect() (*Conn, error) {
	path, err := socketPath()
	if err != nil {
		return nil, err
	}
	return ConnectTo(path)
}

func socketPath() (string, error) {
	display := os.Getenv("WAYLAND_DISPLAY")
	if display == "" {
		display = "wayland-0"
	}
	if filepath.IsAbs(display) {
		return display, nil
	}
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return "", fmt.Errorf("%w: XDG_RUNTIME_DIR not set", ErrNoSocket)
	}
	return filepath.Join(runtimeDir, display), nil
}

// ConnectTo dials a specific socket path, bypassing environment discovery.
func ConnectTo(path string) (*Conn, error) {
	raw, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("wire: connect to %s: %w", path, err)
	}
	uconn, ok := raw.(*net.UnixConn)
	if !ok {
		raw.Close()
		return nil, fmt.Errorf("wire: %s is not a unix socket", path)
	}
	file, err := uconn.File()
	if err != nil {
		uconn.Close()
		return nil, fmt.Errorf("wire: dup socket fd: %w", err)
	}
	c := &Conn{
		conn:      uconn,
		connFile:  file,
		callbacks: make(map[ObjectID]chan uint32),
		handlers:  make(map[ObjectID]Handler),
		readBuf:   make([]byte, maxMessageSize),
	}
	c.nextID.Store(2) // 1 is wl_display
	return c, nil
}

// Close releases the underlying socket. Safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, ch := range c.callbacks {
		close(ch)
	}
	c.callbacks = nil
	if c.connFile != nil {
		c.connFile.Close()
	}
	return c.conn.Close()
}

// AllocID allocates a fresh object id for a new protocol object.
func (c *Conn) AllocID() ObjectID {
	return ObjectID(c.nextID.Add(1) - 1)
}

// Bind registers a Handler to receive every event addressed to id, until
// Forget(id) is called.
func (c *Conn) Bind(id ObjectID, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[id] = h
}

// Forget removes a previously bound handler, e.g. when the protocol object
// is destroyed.
func (c *Conn) Forget(id ObjectID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, id)
}

// Send encodes and writes one request, passing any attached FDs via
// SCM_RIGHTS in the same datagram-ish write.
func (c *Conn) Send(m *Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.lastErr != nil {
		return c.lastErr
	}
	data, err := EncodeMessage(m)
	if err != nil {
		return err
	}
	if len(m.FDs) > 0 {
		rights := unix.UnixRights(m.FDs...)
		return unix.Sendmsg(int(c.connFile.Fd()), data, rights, nil, 0)
	}
	_, err = c.conn.Write(data)
	return err
}

// Sync issues a wl_display.sync request (opcode 0 on object 1) and returns
// a channel that receives the callback's serial once the compositor has
// processed every request sent before it.
func (c *Conn) Sync() (<-chan uint32, error) {
	cb := c.AllocID()
	ch := make(chan uint32, 1)
	c.mu.Lock()
	c.callbacks[cb] = ch
	c.mu.Unlock()

	enc := NewEncoder()
	enc.PutNewID(cb)
	if err := c.Send(enc.Build(1, 0)); err != nil {
		c.mu.Lock()
		delete(c.callbacks, cb)
		c.mu.Unlock()
		return nil, err
	}
	return ch, nil
}

// Roundtrip blocks until every request already sent has been processed by
// the compositor, draining events as they arrive. Mirrors
// wl_display_roundtrip.
func (c *Conn) Roundtrip() error {
	ch, err := c.Sync()
	if err != nil {
		return err
	}
	for {
		if err := c.DispatchOne(); err != nil {
			return err
		}
		select {
		case _, ok := <-ch:
			if !ok {
				return ErrClosed
			}
			return nil
		default:
		}
	}
}

// recv reads exactly one message (header + args), extracting any FDs
// carried via SCM_RIGHTS ancillary data.
func (c *Conn) recv() (*Message, error) {
	oob := make([]byte, 256)
	n, oobn, _, _, err := unix.Recvmsg(int(c.connFile.Fd()), c.readBuf, oob, 0)
	if err != nil {
		return nil, fmt.Errorf("wire: recvmsg: %w", err)
	}
	if n == 0 {
		return nil, ErrClosed
	}
	fds, err := parseFDs(oob[:oobn])
	if err != nil {
		return nil, err
	}
	return DecodeMessage(c.readBuf[:n], fds)
}

func parseFDs(oob []byte) ([]int, error) {
	if len(oob) == 0 {
		return nil, nil
	}
	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("wire: parse control message: %w", err)
	}
	var fds []int
	for _, scm := range scms {
		if scm.Header.Level != unix.SOL_SOCKET || scm.Header.Type != unix.SCM_RIGHTS {
			continue
		}
		got, err := unix.ParseUnixRights(&scm)
		if err != nil {
			return nil, fmt.Errorf("wire: parse unix rights: %w", err)
		}
		fds = append(fds, got...)
	}
	return fds, nil
}

// DispatchOne reads and routes exactly one message.
func (c *Conn) DispatchOne() error {
	msg, err := c.recv()
	if err != nil {
		return err
	}
	return c.route(msg)
}

func (c *Conn) route(msg *Message) error {
	if msg.Object == 1 {
		return c.handleDisplayEvent(msg)
	}
	c.mu.Lock()
	ch, isCallback := c.callbacks[msg.Object]
	h, hasHandler := c.handlers[msg.Object]
	c.mu.Unlock()

	if isCallback && msg.Opcode == 0 {
		dec := NewDecoder(msg.Args, msg.FDs)
		data, err := dec.Uint32()
		if err != nil {
			return err
		}
		c.mu.Lock()
		delete(c.callbacks, msg.Object)
		c.mu.Unlock()
		ch <- data
		close(ch)
		return nil
	}
	if hasHandler {
		h(msg)
	}
	return nil
}

func (c *Conn) handleDisplayEvent(msg *Message) error {
	switch msg.Opcode {
	case 0: // wl_display.error
		dec := NewDecoder(msg.Args, msg.FDs)
		obj, err := dec.Object()
		if err != nil {
			return err
		}
		code, err := dec.Uint32()
		if err != nil {
			return err
		}
		text, err := dec.String()
		if err != nil {
			return err
		}
		protoErr := fmt.Errorf("wire: protocol error on object %d code %d: %s", obj, code, text)
		c.mu.Lock()
		if c.lastErr == nil {
			c.lastErr = protoErr
		}
		c.mu.Unlock()
		return protoErr
	case 1: // wl_display.delete_id
		return nil
	default:
		return nil
	}
}
