package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"mechpower.ai/internal/protocol"
	"mechpower.ai/internal/sim/power/node"
	"mechpower.ai/internal/sim/world"
)

func connect(t *testing.T) (*world.World, *websocket.Conn) {
	t.Helper()
	w := world.New(world.WorldConfig{ID: "ws_test", TickRateHz: 200}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	srv := httptest.NewServer(NewServer(w, nil).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.WriteJSON(protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      "builder",
	}))
	var welcome protocol.WelcomeMsg
	require.NoError(t, conn.ReadJSON(&welcome))
	require.Equal(t, protocol.TypeWelcome, welcome.Type)
	require.Equal(t, "ws_test", welcome.WorldID)
	require.Equal(t, 200, welcome.WorldParams.TickRateHz)
	return w, conn
}

var seq int

func send(t *testing.T, conn *websocket.Conn, cmd protocol.CmdMsg) protocol.AckMsg {
	t.Helper()
	seq++
	cmd.Type = protocol.TypeCmd
	cmd.ProtocolVersion = protocol.Version
	cmd.ID = fmt.Sprintf("c%d", seq)
	require.NoError(t, conn.WriteJSON(cmd))

	var a protocol.AckMsg
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&a))
	require.Equal(t, cmd.ID, a.AckFor)
	return a
}

func TestCommandsAreAcked(t *testing.T) {
	w, conn := connect(t)

	a := send(t, conn, protocol.CmdMsg{Op: "PLACE", Pos: [3]int{0, 0, 0}, Kind: "AXLE", Axis: "X"})
	require.True(t, a.Accepted, a.Message)
	require.Equal(t, "ws_test", a.WorldID)
	require.Eventually(t, func() bool { return w.Status().Blocks == 1 }, time.Second, 5*time.Millisecond)

	a = send(t, conn, protocol.CmdMsg{Op: "PLACE", Pos: [3]int{0, 0, 0}, Kind: "AXLE", Axis: "X"})
	require.False(t, a.Accepted)
	require.Equal(t, protocol.ErrConflict, a.Code)

	a = send(t, conn, protocol.CmdMsg{Op: "BREAK", Pos: [3]int{7, 7, 7}})
	require.Equal(t, protocol.ErrInvalidTarget, a.Code)

	a = send(t, conn, protocol.CmdMsg{Op: "PLACE", Pos: [3]int{1, 0, 0}})
	require.Equal(t, protocol.ErrBadRequest, a.Code, "kind is required")

	a = send(t, conn, protocol.CmdMsg{Op: "SET_DEMAND", Pos: [3]int{0, 0, 0}, Demand: 3})
	require.True(t, a.Accepted)
}

func TestHandshakeRejectsWrongVersion(t *testing.T) {
	w := world.New(world.WorldConfig{ID: "ws_version"}, nil)
	srv := httptest.NewServer(NewServer(w, nil).Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: "9.9", ClientName: "x"}))
	_, _, err = conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "%v", err)
}

func TestCodeFor(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{node.ErrBadSpec, protocol.ErrBadRequest},
		{world.ErrOccupied, protocol.ErrConflict},
		{world.ErrUnknownBlock, protocol.ErrInvalidTarget},
		{fmt.Errorf("wrap: %w", world.ErrRejected), protocol.ErrBlocked},
		{errors.New("disk on fire"), protocol.ErrInternal},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, CodeFor(tc.err), "%v", tc.err)
	}
}
