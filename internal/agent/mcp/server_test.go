package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mechpower.ai/internal/agent/bridge"
)

type stubBridge struct {
	lastKey string
	lastCmd bridge.CommandArgs
}

func (b *stubBridge) GetStatus(ctx context.Context, sessionKey string) (bridge.Status, error) {
	b.lastKey = sessionKey
	return bridge.Status{WorldWSURL: "ws://example.invalid/v1/ws"}, nil
}

func (b *stubBridge) GetKinds(ctx context.Context, sessionKey string) (bridge.Kinds, error) {
	return bridge.Kinds{Kinds: []string{"AXLE"}}, nil
}

func (b *stubBridge) Command(ctx context.Context, sessionKey string, args bridge.CommandArgs) (bridge.CommandResult, error) {
	b.lastKey = sessionKey
	b.lastCmd = args
	if args.Op == "FAIL" {
		return bridge.CommandResult{}, errors.New("dial: refused")
	}
	return bridge.CommandResult{ID: "M_1", Accepted: true, ServerTick: 9}, nil
}

func (b *stubBridge) Disconnect(ctx context.Context, sessionKey string) error { return nil }

func call(t *testing.T, h http.Handler, payload any, header http.Header) (int, rpcResponse) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.RemoteAddr = "127.0.0.1:40000"
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out rpcResponse
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func toolCall(name string, args any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "call_tool",
		"params":  map[string]any{"name": name, "arguments": args},
	}
}

func TestInitializeAndListTools(t *testing.T) {
	s, err := NewServer(Config{Bridge: &stubBridge{}})
	require.NoError(t, err)
	h := s.Handler()

	code, resp := call(t, h, map[string]any{"jsonrpc": "2.0", "id": 1, "method": "initialize"}, nil)
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, resp.Error)
	require.Equal(t, "2024-11-05", resp.Result.(map[string]any)["protocolVersion"])

	_, resp = call(t, h, map[string]any{"jsonrpc": "2.0", "id": 2, "method": "list_tools"}, nil)
	require.Nil(t, resp.Error)
	tools := resp.Result.(map[string]any)["tools"].([]any)
	require.Len(t, tools, 4)

	_, resp = call(t, h, map[string]any{"jsonrpc": "2.0", "id": 3, "method": "nope"}, nil)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)

	code, _ = call(t, h, map[string]any{"jsonrpc": "1.0", "method": "initialize"}, nil)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestCallTools(t *testing.T) {
	b := &stubBridge{}
	s, err := NewServer(Config{Bridge: b})
	require.NoError(t, err)
	h := s.Handler()

	_, resp := call(t, h, toolCall("nope", map[string]any{}), nil)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)

	hdr := http.Header{}
	hdr.Set(headerAgentID, "agent_9")
	_, resp = call(t, h, toolCall(toolCommand, map[string]any{"op": "PLACE", "pos": []int{1, 2, 3}, "kind": "AXLE", "axis": "Y"}), hdr)
	require.Nil(t, resp.Error)
	require.Equal(t, "agent_9", b.lastKey)
	require.Equal(t, [3]int{1, 2, 3}, b.lastCmd.Pos)
	require.Equal(t, true, resp.Result.(map[string]any)["accepted"])

	_, resp = call(t, h, toolCall(toolCommand, map[string]any{"pos": []int{0, 0, 0}}), nil)
	require.Equal(t, codeToolFailed, resp.Error.Code)
	require.Equal(t, "missing op", resp.Error.Message)

	_, resp = call(t, h, toolCall(toolCommand, map[string]any{"op": "FAIL", "pos": []int{0, 0, 0}}), nil)
	require.Equal(t, "dial: refused", resp.Error.Message)

	_, resp = call(t, h, toolCall(toolStatus, nil), nil)
	require.Nil(t, resp.Error)
	require.Equal(t, "default", b.lastKey)

	_, resp = call(t, h, map[string]any{"jsonrpc": "2.0", "id": 4, "method": "call_tool"}, nil)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestLoopbackOnlyWithoutSecret(t *testing.T) {
	s, err := NewServer(Config{Bridge: &stubBridge{}})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader([]byte(`{"method":"initialize"}`)))
	req.RemoteAddr = "203.0.113.5:1234"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHMACRequiredAndReplayRejected(t *testing.T) {
	secret := "k3y"
	now := time.UnixMilli(1700000000000)
	b := &stubBridge{}
	s, err := NewServer(Config{Bridge: b, HMACSecret: secret})
	require.NoError(t, err)
	s.now = func() time.Time { return now }
	h := s.Handler()

	payload := toolCall(toolStatus, nil)
	body, _ := json.Marshal(payload)

	code, _ := call(t, h, payload, nil)
	require.Equal(t, http.StatusUnauthorized, code)

	hdr := Sign([]byte(secret), "agent_3", "nonce-1", now, http.MethodPost, "/mcp", body)
	code, resp := call(t, h, payload, hdr)
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, resp.Error)
	require.Equal(t, "agent_3", b.lastKey)

	code, _ = call(t, h, payload, hdr)
	require.Equal(t, http.StatusUnauthorized, code, "replay")

	hdr = Sign([]byte(secret), "agent_3", "nonce-2", now, http.MethodPost, "/mcp", body)
	code, _ = call(t, h, payload, hdr)
	require.Equal(t, http.StatusOK, code)
}

func TestNewServerNeedsBridge(t *testing.T) {
	_, err := NewServer(Config{})
	require.Error(t, err)
}
