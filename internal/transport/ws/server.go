package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mechpower.ai/internal/protocol"
	"mechpower.ai/internal/sim/power/node"
	"mechpower.ai/internal/sim/world"
)

// Server accepts builder connections and feeds their commands to the world
// loop.
type Server struct {
	world *world.World
	log   *zap.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		world: w,
		log:   logger.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sid, out := s.handshake(conn)
		if sid == "" {
			return
		}
		log := s.log.With(zap.String("session", sid))
		log.Info("builder connected", zap.String("remote", r.RemoteAddr))
		defer log.Info("builder disconnected")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// ACKs of one connection are delivered in tick order, so a single
		// waiter per connection is enough.
		pending := make(chan pendingCmd, cap(out))
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.ackLoop(ctx, pending, out)
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			s.handleMessage(ctx, msg, pending, out)
		}
		cancel()
		close(pending)
		wg.Wait()
	}
}

type pendingCmd struct {
	id   string
	resp chan error
}

func (s *Server) handleMessage(ctx context.Context, msg []byte, pending chan<- pendingCmd, out chan []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeCmd {
		return
	}
	if base.ProtocolVersion != protocol.Version {
		s.reply(out, ack("", protocol.ErrProtoBadRequest, "bad protocol_version"))
		return
	}
	var cmd protocol.CmdMsg
	if err := json.Unmarshal(msg, &cmd); err != nil {
		s.reply(out, ack("", protocol.ErrProtoBadRequest, err.Error()))
		return
	}
	if err := protocol.Validate(protocol.TypeCmd, msg); err != nil {
		s.reply(out, ack(cmd.ID, protocol.ErrBadRequest, err.Error()))
		return
	}
	c, err := world.CommandRequest{
		Op:      cmd.Op,
		Pos:     cmd.Pos,
		Kind:    cmd.Kind,
		Axis:    cmd.Axis,
		Faces:   cmd.Faces,
		Engaged: cmd.Engaged,
		Speed:   cmd.Speed,
		Torque:  cmd.Torque,
		Demand:  cmd.Demand,
	}.Command()
	if err != nil {
		s.reply(out, ack(cmd.ID, CodeFor(err), err.Error()))
		return
	}
	c.Resp = make(chan error, 1)
	select {
	case s.world.Inbox() <- c:
	default:
		s.reply(out, ack(cmd.ID, protocol.ErrWorldBusy, "world inbox full"))
		return
	}
	select {
	case pending <- pendingCmd{id: cmd.ID, resp: c.Resp}:
	case <-ctx.Done():
	}
}

func (s *Server) ackLoop(ctx context.Context, pending <-chan pendingCmd, out chan []byte) {
	for p := range pending {
		var err error
		select {
		case err = <-p.resp:
		case <-ctx.Done():
			continue
		}
		a := ack(p.id, CodeFor(err), "")
		if err != nil {
			a.Message = err.Error()
		}
		a.ServerTick = s.world.CurrentTick()
		a.WorldID = s.world.ID()
		s.reply(out, a)
	}
}

func (s *Server) reply(out chan []byte, a protocol.AckMsg) {
	b, err := json.Marshal(a)
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
		s.log.Debug("ack dropped", zap.String("ack_for", a.AckFor))
	}
}

func ack(id, code, msg string) protocol.AckMsg {
	return protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          id,
		Accepted:        code == "",
		Code:            code,
		Message:         msg,
	}
}

// CodeFor maps a command outcome to its protocol error code.
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, node.ErrBadSpec):
		return protocol.ErrBadRequest
	case errors.Is(err, world.ErrOccupied):
		return protocol.ErrConflict
	case errors.Is(err, world.ErrUnknownBlock):
		return protocol.ErrInvalidTarget
	case errors.Is(err, world.ErrRejected):
		return protocol.ErrBlocked
	default:
		return protocol.ErrInternal
	}
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}
	if base.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}
	if err := protocol.Validate(protocol.TypeHello, msg); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad HELLO"), time.Now().Add(time.Second))
		return "", nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out = make(chan []byte, maxQ)

	cfg := s.world.Config()
	sessionID = "B" + uuid.NewString()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		WorldID:         cfg.ID,
		Tick:            s.world.CurrentTick(),
		WorldParams: protocol.WorldParams{
			TickRateHz:          cfg.TickRateHz,
			InvalidRecheckTicks: cfg.InvalidRecheckTicks,
		},
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", nil
	}
	return sessionID, out
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
