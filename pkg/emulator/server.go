// SPDX-License-Identifier: Apache-2.0

package emulator

import (
	"errors"
	"log"
	"net"
	"sync"

	"github.com/xpbus/conbus/pkg/conbus"
)

// Server accepts controller connections and answers on behalf of its
// modules. Transfer handshake state is per connection, so two controllers
// can talk to different modules at the same time; the modules themselves
// (datapoints, tables) are shared.
type Server struct {
	mu      sync.Mutex
	modules map[string]*Module
	conns   map[net.Conn]bool
	ln      net.Listener
	closed  bool
}

// NewServer creates a server emulating the given modules.
func NewServer(modules ...*Module) *Server {
	s := &Server{
		modules: make(map[string]*Module),
		conns:   make(map[net.Conn]bool),
	}
	for _, m := range modules {
		s.modules[m.Serial] = m
	}
	return s
}

// AddModule plugs another module into the emulated bus.
func (s *Server) AddModule(m *Module) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules[m.Serial] = m
}

// Module returns the emulated module with the given serial, or nil.
func (s *Server) Module(serial string) *Module {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modules[serial]
}

// Listen binds addr and starts serving in the background. It returns the
// bound address, which is how tests recover the port after addr ":0".
func (s *Server) Listen(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	go func() {
		if err := s.Serve(ln); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Printf("emulator: serve: %v", err)
		}
	}()
	return ln.Addr(), nil
}

// Serve accepts connections on ln until the listener is closed.
func (s *Server) Serve(ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(c)
	}
}

// Close stops the listener and drops every open connection.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	ln := s.ln
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	for _, c := range conns {
		c.Close()
	}
	return err
}

// Inject sends a telegram to every connected controller, unsolicited. It
// is how the emulator simulates bus events such as button presses.
func (s *Server) Inject(t *conbus.Telegram) {
	s.mu.Lock()
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if _, err := c.Write([]byte(t.Raw)); err == nil {
			framesSent.Inc()
		}
	}
}

// downloadFeed is the module side of one chunked table download.
type downloadFeed struct {
	data   []byte
	offset int
	ended  bool
}

// connState is the per-connection transfer handshake state, keyed by the
// serial the controller is talking to.
type connState struct {
	downloads map[string]*downloadFeed
	uploads   map[string][]byte
}

func (s *Server) handleConn(c net.Conn) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		c.Close()
		return
	}
	s.conns[c] = true
	s.mu.Unlock()
	connectionsOpen.Inc()

	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		connectionsOpen.Dec()
		c.Close()
	}()

	cs := &connState{
		downloads: make(map[string]*downloadFeed),
		uploads:   make(map[string][]byte),
	}
	ex := conbus.NewExtractor()
	buf := make([]byte, 512)
	for {
		n, err := c.Read(buf)
		if err != nil {
			return
		}
		for _, raw := range ex.Push(buf[:n]) {
			t, perr := conbus.ParseTelegram(raw)
			if perr != nil {
				frameErrors.Inc()
				continue
			}
			if !t.ChecksumValid {
				// A real module stays silent on a corrupted frame and
				// lets the controller's timeout recover.
				frameErrors.Inc()
				continue
			}
			if t.Kind != conbus.KindSystem {
				continue
			}
			framesReceived.WithLabelValues(string(t.System.Function)).Inc()
			for _, reply := range s.respond(cs, t.System) {
				if _, werr := c.Write([]byte(reply.Raw)); werr != nil {
					return
				}
				framesSent.Inc()
			}
		}
	}
}

// respond computes the reply telegrams for one received System telegram.
func (s *Server) respond(cs *connState, req *conbus.SystemTelegram) []*conbus.Telegram {
	if req.Function == conbus.FuncDiscovery && req.SerialNumber == conbus.SerialBroadcast {
		s.mu.Lock()
		mods := make([]*Module, 0, len(s.modules))
		for _, m := range s.modules {
			mods = append(mods, m)
		}
		s.mu.Unlock()
		replies := make([]*conbus.Telegram, 0, len(mods))
		for _, m := range mods {
			if t, err := conbus.NewDiscoveryResponse(m.Serial); err == nil {
				replies = append(replies, t)
			}
		}
		return replies
	}

	m := s.Module(req.SerialNumber)
	if m == nil {
		// Nobody at that address; the bus stays silent.
		return nil
	}

	switch req.Function {
	case conbus.FuncDiscovery:
		return buildReplies(conbus.NewDiscoveryResponse(m.Serial))

	case conbus.FuncReadDatapoint:
		value, ok := m.Datapoint(req.Datapoint)
		if !ok {
			return buildReplies(conbus.NewNakReply(m.Serial))
		}
		return buildReplies(conbus.BuildReply(m.Serial, conbus.FuncReadDatapoint, req.Datapoint, value))

	case conbus.FuncWriteConfig:
		m.SetDatapoint(req.Datapoint, req.Payload)
		return buildReplies(conbus.NewAckReply(m.Serial))

	case conbus.FuncAction:
		return buildReplies(conbus.NewAckReply(m.Serial))

	case conbus.FuncBlink, conbus.FuncUnblink:
		m.setBlinking(req.Function == conbus.FuncBlink)
		return buildReplies(conbus.NewAckReply(m.Serial))

	case conbus.FuncTableStatus:
		// The reset request discards any half-open handshake state.
		delete(cs.downloads, m.Serial)
		delete(cs.uploads, m.Serial)
		return buildReplies(conbus.NewAckReply(m.Serial))

	case conbus.FuncTableDownload:
		table := m.Table()
		if len(table) == 0 {
			return buildReplies(conbus.NewNakReply(m.Serial))
		}
		feed := &downloadFeed{data: table}
		cs.downloads[m.Serial] = feed
		return s.nextChunk(m.Serial, feed)

	case conbus.FuncAck:
		feed := cs.downloads[m.Serial]
		if feed == nil {
			return nil
		}
		if feed.ended {
			delete(cs.downloads, m.Serial)
			return nil
		}
		return s.nextChunk(m.Serial, feed)

	case conbus.FuncTableUpload:
		cs.uploads[m.Serial] = []byte{}
		return buildReplies(conbus.NewAckReply(m.Serial))

	case conbus.FuncTableData:
		staged, ok := cs.uploads[m.Serial]
		if !ok {
			return buildReplies(conbus.NewNakReply(m.Serial))
		}
		chunk, err := conbus.Denibble(req.Payload)
		if err != nil {
			return buildReplies(conbus.NewNakReply(m.Serial))
		}
		cs.uploads[m.Serial] = append(staged, chunk...)
		return buildReplies(conbus.NewAckReply(m.Serial))

	case conbus.FuncTableEnd:
		staged, ok := cs.uploads[m.Serial]
		if !ok {
			return buildReplies(conbus.NewNakReply(m.Serial))
		}
		m.SetTable(staged)
		delete(cs.uploads, m.Serial)
		return buildReplies(conbus.NewAckReply(m.Serial))
	}

	return nil
}

// nextChunk advances a download feed: one table-data reply per solicit,
// end-of-table once the data is exhausted.
func (s *Server) nextChunk(serial string, feed *downloadFeed) []*conbus.Telegram {
	if feed.offset >= len(feed.data) {
		feed.ended = true
		return buildReplies(conbus.NewTableEndReply(serial))
	}
	end := feed.offset + conbus.MaxChunkSize
	if end > len(feed.data) {
		end = len(feed.data)
	}
	chunk := feed.data[feed.offset:end]
	feed.offset = end
	return buildReplies(conbus.NewTableDataReply(serial, chunk))
}

func buildReplies(t *conbus.Telegram, err error) []*conbus.Telegram {
	if err != nil {
		log.Printf("emulator: build reply: %v", err)
		return nil
	}
	return []*conbus.Telegram{t}
}
