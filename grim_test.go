package grim

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"honnef.co/go/grim/internal/wire"
)

// readOneMessage reads exactly one framed wire message off conn: the
// fixed 8-byte header, then the remaining size-8 argument bytes. This is
// the server-side counterpart to wire.Conn's own framing, used only by
// the fake compositor below.
func readOneMessage(conn net.Conn) (*wire.Message, error) {
	header := make([]byte, 8)
	if _, err := readFull(conn, header); err != nil {
		return nil, err
	}
	size := int(header[4]) | int(header[5])<<8 | int(header[6])<<16 | int(header[7])<<24
	size >>= 16
	size &= 0xffff
	full := append([]byte(nil), header...)
	if size > 8 {
		body := make([]byte, size-8)
		if _, err := readFull(conn, body); err != nil {
			return nil, err
		}
		full = append(full, body...)
	}
	return wire.DecodeMessage(full, nil)
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// globalSpec is one interface this fake compositor advertises.
type globalSpec struct {
	name    uint32
	iface   string
	version uint32
}

// runFakeCompositor dials a minimal wl_registry/wl_display handshake:
// it replies to get_registry with the given globals, drains whatever
// bind requests the client issues, then replies to the client's sync
// request so Roundtrip completes. It never advertises any wl_output, so
// tests using it exercise the "globals bound, zero outputs" path.
func runFakeCompositor(t *testing.T, globals []globalSpec) (sockPath string, stop func()) {
	t.Helper()
	dir := t.TempDir()
	sockPath = filepath.Join(dir, "wayland-test")

	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: sockPath, Net: "unix"})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		// get_registry(new_id)
		msg, err := readOneMessage(conn)
		if err != nil {
			return
		}
		dec := wire.NewDecoder(msg.Args, nil)
		registryID, err := dec.Object()
		if err != nil {
			return
		}

		// sync(new_id), sent immediately after get_registry by Roundtrip.
		syncMsg, err := readOneMessage(conn)
		if err != nil {
			return
		}
		syncDec := wire.NewDecoder(syncMsg.Args, nil)
		callbackID, err := syncDec.Object()
		if err != nil {
			return
		}

		for _, g := range globals {
			enc := wire.NewEncoder()
			enc.PutUint32(g.name)
			enc.PutString(g.iface)
			enc.PutUint32(g.version)
			data, err := wire.EncodeMessage(enc.Build(registryID, 0))
			if err != nil {
				return
			}
			if _, err := conn.Write(data); err != nil {
				return
			}
		}

		// Drain the bind requests the client issues in response, one per
		// advertised global it recognises.
		for range globals {
			if _, err := readOneMessage(conn); err != nil {
				return
			}
		}

		enc := wire.NewEncoder()
		enc.PutUint32(1)
		data, err := wire.EncodeMessage(enc.Build(callbackID, 0))
		if err != nil {
			return
		}
		conn.Write(data)
	}()

	return sockPath, func() {
		ln.Close()
		os.Remove(sockPath)
	}
}

func newTestGrim(t *testing.T, globals []globalSpec) *Grim {
	t.Helper()
	sockPath, stop := runFakeCompositor(t, globals)
	t.Cleanup(stop)
	t.Setenv("WAYLAND_DISPLAY", sockPath)

	conn, err := wire.ConnectTo(sockPath)
	if err != nil {
		t.Fatalf("ConnectTo: %v", err)
	}
	g := &Grim{conn: conn, logger: zerolog.Nop()}
	g.reg = newRegistry(conn, g.logger)
	return g
}

func TestBindGlobalsRequiresScreencopy(t *testing.T) {
	g := newTestGrim(t, []globalSpec{
		{name: 1, iface: "wl_compositor", version: 4},
		{name: 2, iface: "wl_shm", version: 1},
	})
	defer g.Close()

	err := g.reg.bindGlobals()
	var grimErr *Error
	if !errors.As(err, &grimErr) || grimErr.Kind != UnsupportedProtocol {
		t.Fatalf("bindGlobals() = %v, want UnsupportedProtocol", err)
	}
}

func TestGetOutputsNoOutputsAfterBindGlobals(t *testing.T) {
	g := newTestGrim(t, []globalSpec{
		{name: 1, iface: "wl_compositor", version: 4},
		{name: 2, iface: "wl_shm", version: 1},
		{name: 3, iface: "zwlr_screencopy_manager_v1", version: 3},
	})
	defer g.Close()

	if err := g.reg.bindGlobals(); err != nil {
		t.Fatalf("bindGlobals: %v", err)
	}

	// bindGlobals alone performs a single round-trip and advertises no
	// wl_output, so the registry's output map is still empty; a second
	// fake-compositor round-trip (as a full GetOutputs refresh would need)
	// is outside this test's scope.
	_, err := g.reg.getOutputs()
	var grimErr *Error
	if !errors.As(err, &grimErr) || grimErr.Kind != NoOutputs {
		t.Fatalf("getOutputs() = %v, want NoOutputs", err)
	}
}
