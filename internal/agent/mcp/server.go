// Package mcp serves the builder tools over a small JSON-RPC endpoint so LLM
// agents can inspect and edit the power networks.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"mechpower.ai/internal/agent/bridge"
)

type Bridge interface {
	GetStatus(ctx context.Context, sessionKey string) (bridge.Status, error)
	GetKinds(ctx context.Context, sessionKey string) (bridge.Kinds, error)
	Command(ctx context.Context, sessionKey string, args bridge.CommandArgs) (bridge.CommandResult, error)
	Disconnect(ctx context.Context, sessionKey string) error
}

type Config struct {
	Bridge     Bridge
	HMACSecret string
	// AllowLegacyHMAC accepts signatures without a nonce.
	AllowLegacyHMAC bool
	Logger          *zap.Logger
}

type Server struct {
	bridge      Bridge
	hmacSecret  []byte
	allowLegacy bool
	replay      *replayGuard
	logger      *zap.Logger
	now         func() time.Time
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Bridge == nil {
		return nil, fmt.Errorf("nil bridge")
	}
	s := &Server{
		bridge:      cfg.Bridge,
		allowLegacy: cfg.AllowLegacyHMAC,
		replay:      newReplayGuard(2 * maxSkew),
		logger:      cfg.Logger,
		now:         time.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.HMACSecret) != "" {
		s.hmacSecret = []byte(cfg.HMACSecret)
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/mcp", s.handleMCP)
	return mux
}

func (s *Server) handleMCP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(rw, "bad body", http.StatusBadRequest)
		return
	}
	_ = r.Body.Close()

	sessionKey := strings.TrimSpace(r.Header.Get(headerAgentID))
	if len(s.hmacSecret) > 0 {
		now := s.now()
		vr := verifyHMAC(r, body, s.hmacSecret, now, s.allowLegacy)
		if vr.HTTPStatus != 0 {
			http.Error(rw, vr.Message, vr.HTTPStatus)
			return
		}
		if !s.replay.allow(vr.SessionKey, vr.Signature, now) {
			http.Error(rw, "replayed request", http.StatusUnauthorized)
			return
		}
		sessionKey = vr.SessionKey
	} else if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden: non-loopback client", http.StatusForbidden)
		return
	}
	if sessionKey == "" {
		sessionKey = "default"
	}

	req, err := parseRPCRequest(body)
	if err != nil {
		http.Error(rw, "bad jsonrpc request", http.StatusBadRequest)
		return
	}

	resp := s.dispatch(r.Context(), sessionKey, req)
	rw.Header().Set("content-type", "application/json")
	_ = json.NewEncoder(rw).Encode(resp)
}

func (s *Server) dispatch(ctx context.Context, sessionKey string, req rpcRequest) rpcResponse {
	switch req.Method {
	case "initialize":
		return rpcOK(req.ID, map[string]any{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]any{
				"tools": map[string]any{"listChanged": false},
			},
		})

	case "list_tools":
		return rpcOK(req.ID, map[string]any{"tools": toolsList()})

	case "call_tool":
		var p struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if len(req.Params) == 0 {
			return rpcErr(req.ID, codeInvalidParams, "missing params", nil)
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return rpcErr(req.ID, codeInvalidParams, "bad params", err.Error())
		}
		if p.Name == "" {
			return rpcErr(req.ID, codeInvalidParams, "missing tool name", nil)
		}
		if !isKnownTool(p.Name) {
			return rpcErr(req.ID, codeMethodNotFound, "tool not found", map[string]any{"name": p.Name})
		}
		out, err := s.callTool(ctx, sessionKey, p.Name, p.Arguments)
		if err != nil {
			s.logger.Debug("tool failed", zap.String("tool", p.Name), zap.String("session", sessionKey), zap.Error(err))
			return rpcErr(req.ID, codeToolFailed, err.Error(), nil)
		}
		return rpcOK(req.ID, out)

	default:
		return rpcErr(req.ID, codeMethodNotFound, "method not found", nil)
	}
}

const (
	toolStatus     = "mechpower.get_status"
	toolKinds      = "mechpower.get_kinds"
	toolCommand    = "mechpower.command"
	toolDisconnect = "mechpower.disconnect"
)

func toolsList() []map[string]any {
	empty := map[string]any{"type": "object", "properties": map[string]any{}, "additionalProperties": false}
	return []map[string]any{
		{
			"name":        toolStatus,
			"description": "Get the state of this agent's builder connection.",
			"inputSchema": empty,
		},
		{
			"name":        toolKinds,
			"description": "List block kinds, axes, faces and command ops.",
			"inputSchema": empty,
		},
		{
			"name":        toolCommand,
			"description": "Place, break or reconfigure one power block and wait for the result.",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"op":      map[string]any{"type": "string", "enum": []string{"PLACE", "BREAK", "RECONFIGURE", "SET_POWER", "SET_DEMAND"}},
					"pos":     map[string]any{"type": "array", "items": map[string]any{"type": "integer"}, "minItems": 3, "maxItems": 3},
					"kind":    map[string]any{"type": "string"},
					"axis":    map[string]any{"type": "string", "enum": []string{"X", "Y", "Z"}},
					"faces":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"engaged": map[string]any{"type": "boolean"},
					"speed":   map[string]any{"type": "number", "minimum": 0},
					"torque":  map[string]any{"type": "number", "minimum": 0},
					"demand":  map[string]any{"type": "number", "minimum": 0},
				},
				"required": []string{"op", "pos"},
			},
		},
		{
			"name":        toolDisconnect,
			"description": "Close the builder connection. The next command reconnects.",
			"inputSchema": empty,
		},
	}
}

func (s *Server) callTool(ctx context.Context, sessionKey, name string, args json.RawMessage) (any, error) {
	switch name {
	case toolStatus:
		return s.bridge.GetStatus(ctx, sessionKey)
	case toolKinds:
		return s.bridge.GetKinds(ctx, sessionKey)
	case toolCommand:
		var a bridge.CommandArgs
		if len(args) == 0 {
			return nil, fmt.Errorf("missing arguments")
		}
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("bad arguments: %w", err)
		}
		if strings.TrimSpace(a.Op) == "" {
			return nil, fmt.Errorf("missing op")
		}
		return s.bridge.Command(ctx, sessionKey, a)
	case toolDisconnect:
		if err := s.bridge.Disconnect(ctx, sessionKey); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, nil
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

func isKnownTool(name string) bool {
	switch name {
	case toolStatus, toolKinds, toolCommand, toolDisconnect:
		return true
	default:
		return false
	}
}
