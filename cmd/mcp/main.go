// Command mcp exposes the builder tools to LLM agents over JSON-RPC and
// forwards their commands to a world's builder socket.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mechpower.ai/internal/agent/bridge"
	"mechpower.ai/internal/agent/mcp"
	"mechpower.ai/internal/logging"
)

func main() {
	var (
		listen     = flag.String("listen", "127.0.0.1:8090", "http listen address")
		worldWSURL = flag.String("world-ws-url", "ws://127.0.0.1:8080/v1/ws", "builder socket url")
		hmacSecret = flag.String("hmac-secret", "", "hmac secret (or set MP_MCP_HMAC_SECRET)")
		stateFile  = flag.String("state-file", "./data/mcp/sessions.json", "path to persisted session state")
		maxSess    = flag.Int("max-sessions", 256, "max concurrent sessions")
		logLevel   = flag.String("log_level", "info", "log level")
	)
	flag.Parse()

	logger, err := logging.New(*logLevel)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Named("mcp")

	if strings.TrimSpace(*hmacSecret) == "" {
		*hmacSecret = strings.TrimSpace(os.Getenv("MP_MCP_HMAC_SECRET"))
	}
	requireHMAC := envBool("MP_MCP_REQUIRE_HMAC", productionDeploy())
	allowLegacy := envBool("MP_MCP_HMAC_ALLOW_LEGACY", !productionDeploy())
	if requireHMAC && *hmacSecret == "" {
		log.Fatal("hmac secret required (set -hmac-secret or MP_MCP_HMAC_SECRET)")
	}
	if *hmacSecret == "" && !isLoopbackListenAddress(*listen) {
		log.Fatal("refusing non-loopback bind without hmac secret", zap.String("listen", *listen))
	}
	authMode := "hmac"
	if *hmacSecret == "" {
		authMode = "none(loopback-only)"
	}
	log.Info("auth", zap.String("mode", authMode), zap.Bool("require_hmac", requireHMAC), zap.Bool("allow_legacy_hmac", allowLegacy))

	br, err := bridge.NewManager(bridge.Config{
		WorldWSURL:  *worldWSURL,
		StateFile:   *stateFile,
		MaxSessions: *maxSess,
	}, logger.Named("bridge"))
	if err != nil {
		log.Fatal("bridge", zap.Error(err))
	}
	defer br.Close()

	srv, err := mcp.NewServer(mcp.Config{
		Bridge:          br,
		HMACSecret:      *hmacSecret,
		AllowLegacyHMAC: allowLegacy,
		Logger:          log,
	})
	if err != nil {
		log.Fatal("mcp", zap.Error(err))
	}

	httpSrv := &http.Server{
		Addr:              *listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info("listening", zap.String("addr", *listen), zap.String("world_ws", *worldWSURL))
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("listen", zap.Error(err))
	}
}

func productionDeploy() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return true
	default:
		return false
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func isLoopbackListenAddress(addr string) bool {
	host := strings.TrimSpace(addr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(strings.TrimSpace(host), "[]"))
	if host == "" {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
