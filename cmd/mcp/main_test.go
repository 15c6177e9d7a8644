package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsLoopbackListenAddress(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:8090": true,
		"localhost:8090": true,
		"[::1]:8090":     true,
		":8090":          false,
		"0.0.0.0:8090":   false,
		"10.1.2.3:8090":  false,
	} {
		require.Equal(t, want, isLoopbackListenAddress(addr), addr)
	}
}

func TestProductionDefaults(t *testing.T) {
	t.Setenv("DEPLOY_ENV", "production")
	require.True(t, productionDeploy())
	require.True(t, envBool("MP_MCP_REQUIRE_HMAC", productionDeploy()))
	t.Setenv("MP_MCP_REQUIRE_HMAC", "false")
	require.False(t, envBool("MP_MCP_REQUIRE_HMAC", productionDeploy()))
	t.Setenv("DEPLOY_ENV", "dev")
	require.False(t, productionDeploy())
}
