package observer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"mechpower.ai/internal/observerproto"
	"mechpower.ai/internal/sim/power/geom"
	"mechpower.ai/internal/sim/power/node"
	"mechpower.ai/internal/sim/world"
)

func startWorld(t *testing.T) (*world.World, *httptest.Server) {
	t.Helper()
	w := world.New(world.WorldConfig{ID: "obs_test", TickRateHz: 200}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	s := NewServer(w, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/v1/observer/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/v1/observer", s.WSHandler())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return w, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/observer"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestBootstrap(t *testing.T) {
	w, srv := startWorld(t)
	require.NoError(t, w.Submit(context.Background(), world.Command{
		Kind: world.CmdPlace,
		Spec: node.Spec{Kind: node.KindWheel, Pos: geom.Pos{}, Axis: geom.AxisX, Speed: 0.1, Torque: 5},
	}))
	require.Eventually(t, func() bool { return len(w.NetworkStates()) == 1 }, time.Second, 5*time.Millisecond)

	resp, err := http.Get(srv.URL + "/admin/v1/observer/bootstrap")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var boot observerproto.BootstrapResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&boot))
	require.Equal(t, "obs_test", boot.WorldID)
	require.Equal(t, 200, boot.WorldParams.TickRateHz)
	require.Equal(t, 20, boot.WorldParams.SyncEveryTicks)
	require.Len(t, boot.Kinds, 7)
	require.Equal(t, float32(0.1), boot.Networks[0].TargetSpeed)

	post, err := http.Post(srv.URL+"/admin/v1/observer/bootstrap", "application/json", nil)
	require.NoError(t, err)
	post.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, post.StatusCode)
}

func TestSubscribeStreamsWelcomeAndRecords(t *testing.T) {
	w, srv := startWorld(t)
	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(observerproto.SubscribeMsg{
		Type:            "SUBSCRIBE",
		ProtocolVersion: observerproto.Version,
		Events:          true,
	}))

	var welcome observerproto.WelcomeMsg
	var gotReset bool
	for welcome.Type == "" || !gotReset {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		kind, b, err := conn.ReadMessage()
		require.NoError(t, err)
		switch kind {
		case websocket.TextMessage:
			require.NoError(t, json.Unmarshal(b, &welcome))
		case websocket.BinaryMessage:
			_, recs, err := observerproto.DecodeBatch(b)
			require.NoError(t, err)
			require.True(t, recs[0].Reset)
			gotReset = true
		}
	}
	require.Equal(t, "WELCOME", welcome.Type)
	require.True(t, strings.HasPrefix(welcome.SessionID, "O"))

	require.NoError(t, w.Submit(context.Background(), world.Command{
		Kind: world.CmdPlace,
		Spec: node.Spec{Kind: node.KindCrank, Pos: geom.Pos{Y: 4}, Axis: geom.AxisY, Speed: 0.05, Torque: 2},
	}))

	var sawTick, sawRecord bool
	for !sawTick || !sawRecord {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		kind, b, err := conn.ReadMessage()
		require.NoError(t, err)
		if kind == websocket.BinaryMessage {
			_, recs, err := observerproto.DecodeBatch(b)
			require.NoError(t, err)
			for _, r := range recs {
				if r.TargetSpeed == 0.05 {
					sawRecord = true
				}
			}
			continue
		}
		var msg observerproto.TickMsg
		require.NoError(t, json.Unmarshal(b, &msg))
		if msg.Type == "TICK" {
			sawTick = true
		}
	}
}

func TestHandshakeRequiresSubscribe(t *testing.T) {
	_, srv := startWorld(t)
	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "HELLO", "protocol_version": observerproto.Version}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "%v", err)
}

func TestIsLoopbackRemote(t *testing.T) {
	require.True(t, IsLoopbackRemote("127.0.0.1:1234"))
	require.True(t, IsLoopbackRemote("[::1]:80"))
	require.False(t, IsLoopbackRemote("10.0.0.2:80"))
	require.False(t, IsLoopbackRemote("nonsense"))
}
