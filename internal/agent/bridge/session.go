package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mechpower.ai/internal/protocol"
)

type SessionConfig struct {
	Key         string
	WorldWSURL  string
	ClientName  string
	ReadTimeout time.Duration
}

type sessionUpdate struct {
	SessionID       string
	WorldID         string
	LastConnectedAt time.Time
	Commands        uint64
}

type onUpdateFn func(key string, upd sessionUpdate)

// Session dials lazily and keeps at most one command in flight, so every ACK
// read belongs to the command just sent.
type Session struct {
	cfg      SessionConfig
	onUpdate onUpdateFn

	// cmdMu serialises commands and guards conn.
	cmdMu sync.Mutex
	conn  *websocket.Conn

	mu         sync.RWMutex
	welcome    protocol.WelcomeMsg
	connected  bool
	lastErr    string
	lastTick   uint64
	commands   uint64
	rejected   uint64
	lastUsedAt time.Time
}

func NewSession(cfg SessionConfig, onUpdate onUpdateFn) *Session {
	if cfg.Key == "" {
		cfg.Key = "default"
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "mcp:" + cfg.Key
	}
	if len(cfg.ClientName) > 64 {
		cfg.ClientName = cfg.ClientName[:64]
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	return &Session{cfg: cfg, onUpdate: onUpdate, lastUsedAt: time.Now()}
}

func (s *Session) LastUsedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUsedAt
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsedAt = time.Now()
	s.mu.Unlock()
}

func (s *Session) Status() Status {
	s.touch()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Connected:  s.connected,
		SessionID:  s.welcome.SessionID,
		WorldID:    s.welcome.WorldID,
		WorldWSURL: s.cfg.WorldWSURL,
		LastTick:   s.lastTick,
		Commands:   s.commands,
		Rejected:   s.rejected,
		LastError:  s.lastErr,
	}
}

// Close drops the connection. A later command dials again.
func (s *Session) Close() {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	s.dropLocked(nil)
}

// Command sends one mutation and waits for its ACK. A transport error closes
// the connection; the next call reconnects.
func (s *Session) Command(ctx context.Context, args CommandArgs) (CommandResult, error) {
	s.touch()
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if s.conn == nil {
		if err := s.connectLocked(ctx); err != nil {
			s.setErr(err)
			return CommandResult{}, err
		}
	}

	s.mu.Lock()
	s.commands++
	id := fmt.Sprintf("M_%d", s.commands)
	s.mu.Unlock()

	msg := protocol.CmdMsg{
		Type:            protocol.TypeCmd,
		ProtocolVersion: protocol.Version,
		ID:              id,
		Op:              args.Op,
		Pos:             args.Pos,
		Kind:            args.Kind,
		Axis:            args.Axis,
		Faces:           args.Faces,
		Engaged:         args.Engaged,
		Speed:           args.Speed,
		Torque:          args.Torque,
		Demand:          args.Demand,
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(dl)
	} else {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
	if err := s.conn.WriteJSON(msg); err != nil {
		err = fmt.Errorf("send CMD: %w", err)
		s.dropLocked(err)
		return CommandResult{}, err
	}

	var ack protocol.AckMsg
	if err := s.readLocked(ctx, protocol.TypeAck, &ack); err != nil {
		s.dropLocked(err)
		return CommandResult{}, err
	}
	if ack.AckFor != id {
		err := fmt.Errorf("ack for %q, want %q", ack.AckFor, id)
		s.dropLocked(err)
		return CommandResult{}, err
	}

	s.mu.Lock()
	if ack.ServerTick > s.lastTick {
		s.lastTick = ack.ServerTick
	}
	if !ack.Accepted {
		s.rejected++
	}
	upd := sessionUpdate{Commands: s.commands}
	s.mu.Unlock()
	s.notify(upd)

	return CommandResult{
		ID:         id,
		Accepted:   ack.Accepted,
		Code:       ack.Code,
		Message:    ack.Message,
		ServerTick: ack.ServerTick,
	}, nil
}

func (s *Session) connectLocked(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.WorldWSURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	s.conn = conn
	if err := conn.WriteJSON(protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      s.cfg.ClientName,
		MaxQueue:        4,
	}); err != nil {
		s.dropLocked(nil)
		return fmt.Errorf("send HELLO: %w", err)
	}
	var w protocol.WelcomeMsg
	if err := s.readLocked(ctx, protocol.TypeWelcome, &w); err != nil {
		s.dropLocked(nil)
		return err
	}

	now := time.Now()
	s.mu.Lock()
	s.welcome = w
	s.connected = true
	s.lastErr = ""
	if w.Tick > s.lastTick {
		s.lastTick = w.Tick
	}
	s.mu.Unlock()
	s.notify(sessionUpdate{SessionID: w.SessionID, WorldID: w.WorldID, LastConnectedAt: now})
	return nil
}

func (s *Session) readLocked(ctx context.Context, typ string, v any) error {
	deadline := time.Now().Add(s.cfg.ReadTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = s.conn.SetReadDeadline(deadline)
	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read %s: %w", typ, err)
	}
	base, err := protocol.DecodeBase(raw)
	if err != nil {
		return fmt.Errorf("read %s: %w", typ, err)
	}
	if base.Type != typ {
		return errors.New("expected " + typ + ", got " + base.Type)
	}
	return json.Unmarshal(raw, v)
}

func (s *Session) dropLocked(cause error) {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.mu.Lock()
	s.connected = false
	if cause != nil {
		s.lastErr = cause.Error()
	}
	s.mu.Unlock()
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
}

func (s *Session) notify(upd sessionUpdate) {
	if s.onUpdate != nil {
		s.onUpdate(s.cfg.Key, upd)
	}
}
