package rstmdb

import (
	"encoding/json"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rstmdb/rstmdb-go/pkg/rstmdb/protocol"
)

// srvConn is one accepted connection on the fake server. Writes are
// serialized so responses and pushed events never interleave.
type srvConn struct {
	net.Conn
	mu sync.Mutex
	t  *testing.T
}

func (c *srvConn) writeJSON(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.t.Errorf("fake server: marshal: %v", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.Write(protocol.NewFrame(payload).Encode())
}

func (c *srvConn) replyOK(id string, result map[string]any) {
	if result == nil {
		result = map[string]any{}
	}
	c.writeJSON(map[string]any{
		"type":   protocol.TypeResponse,
		"id":     id,
		"status": protocol.StatusOK,
		"result": result,
	})
}

func (c *srvConn) replyErr(id, code, message string, retryable bool) {
	c.writeJSON(map[string]any{
		"type":   protocol.TypeResponse,
		"id":     id,
		"status": protocol.StatusError,
		"error": map[string]any{
			"code":      code,
			"message":   message,
			"retryable": retryable,
		},
	})
}

func (c *srvConn) sendEvent(evt *protocol.StreamEvent) {
	evt.Type = protocol.TypeEvent
	c.writeJSON(evt)
}

// rcpHandler handles one non-handshake request. It may reply immediately,
// stash the id and reply later, or not reply at all.
type rcpHandler func(conn *srvConn, req *protocol.Request)

// fakeServer speaks just enough RCP to exercise the engine: it frames and
// parses messages, auto-acknowledges HELLO/AUTH/BYE, and hands everything
// else to a test-provided handler.
type fakeServer struct {
	t  *testing.T
	ln net.Listener

	mu       sync.Mutex
	handler  rcpHandler
	token    string
	conns    []*srvConn
	accepts  int
	acceptCh chan *srvConn
	hello    map[string]any
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("fake server: listen: %v", err)
	}
	s := &fakeServer{
		t:        t,
		ln:       ln,
		acceptCh: make(chan *srvConn, 16),
	}
	go s.acceptLoop()
	t.Cleanup(s.stop)
	return s
}

func (s *fakeServer) stop() {
	s.ln.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		c.Close()
	}
}

func (s *fakeServer) setHandler(h rcpHandler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

func (s *fakeServer) setToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// config returns a client Config pointed at this server, with timeouts
// short enough for tests.
func (s *fakeServer) config() Config {
	addr := s.ln.Addr().(*net.TCPAddr)
	return Config{
		Host:           addr.IP.String(),
		Port:           addr.Port,
		ConnectTimeout: 2 * time.Second,
		RequestTimeout: 2 * time.Second,
	}
}

// dropConnections severs every live connection, simulating a network
// failure or server restart. The listener stays up for reconnects.
func (s *fakeServer) dropConnections() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

// waitAccept blocks until the server has accepted another connection.
func (s *fakeServer) waitAccept(t *testing.T) *srvConn {
	t.Helper()
	select {
	case c := <-s.acceptCh:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("fake server: timed out waiting for a connection")
		return nil
	}
}

// helloParams returns the params of the most recent HELLO request.
func (s *fakeServer) helloParams() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hello
}

func (s *fakeServer) acceptLoop() {
	for {
		raw, err := s.ln.Accept()
		if err != nil {
			return
		}
		conn := &srvConn{Conn: raw, t: s.t}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.accepts++
		s.mu.Unlock()
		go s.serve(conn)
		s.acceptCh <- conn
	}
}

func (s *fakeServer) serve(conn *srvConn) {
	var buf []byte
	chunk := make([]byte, 4096)
	for {
		n, err := conn.Read(chunk)
		if err != nil {
			return
		}
		buf = append(buf, chunk[:n]...)
		for {
			frame, rest, err := protocol.DecodeFrame(buf, 0)
			if err != nil {
				s.t.Errorf("fake server: corrupt frame from client: %v", err)
				conn.Close()
				return
			}
			if frame == nil {
				break
			}
			buf = rest

			var req protocol.Request
			if err := json.Unmarshal(frame.Payload, &req); err != nil {
				s.t.Errorf("fake server: bad request payload: %v", err)
				continue
			}
			s.dispatch(conn, &req)
		}
	}
}

func (s *fakeServer) dispatch(conn *srvConn, req *protocol.Request) {
	switch req.Op {
	case protocol.OpHello:
		s.mu.Lock()
		s.hello = req.Params
		s.mu.Unlock()
		conn.replyOK(req.ID, map[string]any{"server": "fake", "protocol_version": 1})
	case protocol.OpAuth:
		s.mu.Lock()
		token := s.token
		s.mu.Unlock()
		if token != "" && req.Params["token"] != token {
			conn.replyErr(req.ID, protocol.CodeAuthFailed, "bad token", false)
			return
		}
		conn.replyOK(req.ID, nil)
	case protocol.OpBye:
		conn.replyOK(req.ID, nil)
	default:
		s.mu.Lock()
		h := s.handler
		s.mu.Unlock()
		if h != nil {
			h(conn, req)
			return
		}
		conn.replyOK(req.ID, nil)
	}
}

// subIDCounter hands out subscription ids for handlers that ack watches.
var subIDCounter atomic.Int64

func nextSubID() string {
	return "sub-" + strconv.FormatInt(subIDCounter.Add(1), 10)
}

// openClient builds and opens a client against the fake server, closing it
// on test cleanup.
func openClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := c.Open(t.Context()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}
