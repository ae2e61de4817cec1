// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netserver implements the TCP transport connecting external
// clients to the Dispatcher, per spec §6. Each accepted connection gets
// a dedicated reader goroutine (decoding frames onto one shared inbound
// channel) and writer goroutine (draining a per-client outbound
// channel), mirroring the reader/writer goroutine split used for the
// observation relay elsewhere in this codebase — but trading the PTY
// for a TCP socket and the ad hoc shutdown channel for a simple
// close-on-error convention, since there is no subprocess to wait on
// here.
//
// The single-threaded Dispatcher never touches a net.Conn directly: it
// calls [Server.Pump] once per tick to drain inbound frames, and
// [Server.Unicast] / [Server.Broadcast] to enqueue outbound ones. All
// synchronization lives in this package.
package netserver

import (
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/resourced-io/resourced/internal/request"
	"github.com/resourced-io/resourced/internal/wire"
)

// outboundQueueCapacity bounds how many unsent frames a single slow
// client can accumulate before the server starts dropping its traffic
// rather than blocking the Dispatcher tick.
const outboundQueueCapacity = 256

// InboundFrame pairs a decoded frame with the client connection it
// arrived on.
type InboundFrame struct {
	ClientID request.ClientID
	Frame    wire.Frame
}

// Server accepts TCP connections and exchanges framed messages
// (internal/wire) with each client.
type Server struct {
	listener net.Listener
	logger   *slog.Logger

	inbound chan InboundFrame

	mu      sync.Mutex
	clients map[request.ClientID]*clientConn
	closed  bool

	wg sync.WaitGroup
}

type clientConn struct {
	id       request.ClientID
	conn     net.Conn
	outbound chan wire.Frame
}

// Listen starts a Server accepting connections on addr (e.g.
// "0.0.0.0:7777").
func Listen(addr string, logger *slog.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		listener: listener,
		logger:   logger,
		inbound:  make(chan InboundFrame, outboundQueueCapacity),
		clients:  make(map[request.ClientID]*clientConn),
	}

	s.wg.Add(1)
	go s.acceptLoop()

	return s, nil
}

// Addr returns the listener's bound network address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// newClientID derives a ClientID from the first four bytes of a fresh
// UUID (uuid.ID), resampling on the vanishingly unlikely chance of the reserved zero
// sentinel (spec §3: clientID 0 means "no client").
func newClientID() request.ClientID {
	for {
		id := request.ClientID(uuid.New().ID())
		if id != 0 {
			return id
		}
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	client := &clientConn{
		id:       newClientID(),
		conn:     conn,
		outbound: make(chan wire.Frame, outboundQueueCapacity),
	}

	s.mu.Lock()
	s.clients[client.id] = client
	s.mu.Unlock()

	s.logger.Info("client connected", "client_id", client.id, "remote", conn.RemoteAddr())

	var writerDone sync.WaitGroup
	writerDone.Add(1)
	go func() {
		defer writerDone.Done()
		for frame := range client.outbound {
			if err := wire.WriteFrame(conn, frame); err != nil {
				return
			}
		}
	}()

	for {
		frame, err := wire.ReadFrame(conn)
		if err != nil {
			break
		}
		select {
		case s.inbound <- InboundFrame{ClientID: client.id, Frame: frame}:
		default:
			s.logger.Warn("inbound queue full, dropping frame", "client_id", client.id, "type", frame.Type)
		}
	}

	s.mu.Lock()
	delete(s.clients, client.id)
	s.mu.Unlock()

	close(client.outbound)
	conn.Close()
	writerDone.Wait()

	s.logger.Info("client disconnected", "client_id", client.id)
}

// Pump drains every inbound frame received since the last call,
// non-blocking. Called once per Dispatcher tick (spec §4.4 step 1).
func (s *Server) Pump() []InboundFrame {
	var frames []InboundFrame
	for {
		select {
		case frame := <-s.inbound:
			frames = append(frames, frame)
		default:
			return frames
		}
	}
}

// Unicast enqueues a message for a single client. A disconnected or
// unknown clientID is silently dropped — the client that would have
// received it is already gone.
func (s *Server) Unicast(clientID request.ClientID, messageType byte, payload any) {
	s.mu.Lock()
	client, ok := s.clients[clientID]
	s.mu.Unlock()
	if !ok {
		return
	}
	s.enqueue(client, messageType, payload)
}

// Broadcast enqueues a message for every currently connected client.
func (s *Server) Broadcast(messageType byte, payload any) {
	s.mu.Lock()
	targets := make([]*clientConn, 0, len(s.clients))
	for _, client := range s.clients {
		targets = append(targets, client)
	}
	s.mu.Unlock()

	for _, client := range targets {
		s.enqueue(client, messageType, payload)
	}
}

func (s *Server) enqueue(client *clientConn, messageType byte, payload any) {
	frame, err := wire.EncodeFrame(messageType, payload)
	if err != nil {
		s.logger.Error("encode outbound frame", "client_id", client.id, "type", messageType, "error", err)
		return
	}
	select {
	case client.outbound <- frame:
	default:
		s.logger.Warn("outbound queue full, dropping frame", "client_id", client.id, "type", messageType)
	}
}

// NumClients reports how many clients are currently connected.
func (s *Server) NumClients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Shutdown stops accepting new connections, closes every client
// connection, and waits for all connection goroutines to exit.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.closed = true
	for _, client := range s.clients {
		client.conn.Close()
	}
	s.mu.Unlock()

	s.listener.Close()
	s.wg.Wait()
}
