package grim

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"honnef.co/go/grim/internal/wire"
	"honnef.co/go/grim/internal/wl"
	"honnef.co/go/grim/internal/xdgoutput"
)

// listenAndDial starts a unix-socket listener that simply accepts and
// discards whatever the client writes, and returns a Conn dialed to it.
// Nothing here inspects the protocol: these tests drive outputState event
// handlers directly, independent of wire framing.
func listenAndDial(t *testing.T) *wire.Conn {
	t.Helper()
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "wayland-test")
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: sockPath, Net: "unix"})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() {
		ln.Close()
		os.Remove(sockPath)
	})
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		io := make([]byte, 4096)
		for {
			if _, err := conn.Read(io); err != nil {
				return
			}
		}
	}()
	conn, err := wire.ConnectTo(sockPath)
	if err != nil {
		t.Fatalf("ConnectTo: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// TestXdgOutputLogicalEventsSetScaleKnownImmediately guards against the
// wl_output guess-rule clobbering real xdg-output-derived geometry: a
// wl_output.mode arriving after logical_position/logical_size but before
// xdg_output.done must not overwrite the logical size those events already
// reported, since §4.2 requires logical_scale_known to flip true as soon
// as any of the three xdg-output geometry events (not just done) fires.
func TestXdgOutputLogicalEventsSetScaleKnownImmediately(t *testing.T) {
	conn := listenAndDial(t)
	r := newRegistry(conn, zerolog.Nop())

	r.wlReg = wl.GetRegistry(conn)
	r.xdgOutputMgr = xdgoutput.Bind(conn, r.wlReg, 1, 2)
	handle := wl.BindOutput(conn, r.wlReg, 2, 3)
	st := newOutputState(handle.ID(), handle)
	r.wireOutputEvents(st)
	r.requestXdgOutput(st)

	// xdg-output reports the real logical geometry first...
	st.xdgHandle.OnLogicalPosition(10, 20)
	st.xdgHandle.OnLogicalSize(800, 600)

	// ...then wl_output's physical-mode guess-rule event arrives before
	// xdg_output.done. It must not clobber the xdg-output-derived size.
	st.handle.OnGeometry(0, 0, 0)
	st.handle.OnMode(3200, 1800)
	st.handle.OnScale(2)

	if st.logicalSize != [2]int32{800, 600} {
		t.Errorf("logicalSize = %v, want {800 600} (xdg-output must win over the guess rule)", st.logicalSize)
	}
	if st.logicalPos != [2]int32{10, 20} {
		t.Errorf("logicalPos = %v, want {10 20}", st.logicalPos)
	}
	if !st.logicalScaleKnown {
		t.Error("logicalScaleKnown = false, want true after logical_position/logical_size")
	}
}
