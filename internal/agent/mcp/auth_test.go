package mcp

import (
	"bytes"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func signedRequest(t *testing.T, h http.Header, body []byte) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "http://example.invalid/mcp", bytes.NewReader(body))
	require.NoError(t, err)
	for k, v := range h {
		req.Header[k] = v
	}
	return req
}

func TestHMACVectorLegacy(t *testing.T) {
	secret := []byte("topsecret")
	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"list_tools"}`)
	got := signHMAC(secret, canonicalString("1700000000000", "POST", "/mcp", body))
	require.Equal(t, "8d8937fdcea524a9301a74e8e2e4b3ee64ea5ae993f29219d57d0cd3d276613b", got)

	h := http.Header{}
	h.Set(headerAgentID, "agent_1")
	h.Set(headerTS, "1700000000000")
	h.Set(headerSignature, got)
	now := time.UnixMilli(1700000000000)

	vr := verifyHMAC(signedRequest(t, h, body), body, secret, now, true)
	require.Zero(t, vr.HTTPStatus, vr.Message)
	require.Equal(t, "agent_1", vr.SessionKey)

	vr = verifyHMAC(signedRequest(t, h, body), body, secret, now, false)
	require.Equal(t, http.StatusUnauthorized, vr.HTTPStatus)
	require.Equal(t, "missing x-nonce", vr.Message)
}

func TestHMACSignAndVerify(t *testing.T) {
	secret := []byte("s3cret")
	body := []byte(`{"method":"initialize"}`)
	now := time.UnixMilli(1700000000000)
	h := Sign(secret, "agent_7", "n1", now, http.MethodPost, "/mcp", body)

	vr := verifyHMAC(signedRequest(t, h, body), body, secret, now.Add(time.Minute), false)
	require.Zero(t, vr.HTTPStatus, vr.Message)
	require.Equal(t, "agent_7", vr.SessionKey)

	vr = verifyHMAC(signedRequest(t, h, body), []byte(`{"method":"other"}`), secret, now, false)
	require.Equal(t, "bad signature", vr.Message)

	vr = verifyHMAC(signedRequest(t, h, body), body, []byte("wrong"), now, true)
	require.Equal(t, "bad signature", vr.Message)

	vr = verifyHMAC(signedRequest(t, h, body), body, secret, now.Add(maxSkew+time.Second), false)
	require.Equal(t, "x-ts outside window", vr.Message)
}

func TestHMACMissingHeaders(t *testing.T) {
	body := []byte(`{}`)
	now := time.Now()
	full := Sign([]byte("k"), "a", "n", now, http.MethodPost, "/mcp", body)
	for _, tc := range []struct {
		drop string
		want string
	}{
		{headerAgentID, "missing x-agent-id"},
		{headerTS, "missing x-ts"},
		{headerSignature, "missing x-signature"},
	} {
		h := full.Clone()
		h.Del(tc.drop)
		vr := verifyHMAC(signedRequest(t, h, body), body, []byte("k"), now, false)
		require.Equal(t, tc.want, vr.Message, tc.drop)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	require.True(t, isLoopbackRemote("127.0.0.1:5000"))
	require.True(t, isLoopbackRemote("[::1]:5000"))
	require.True(t, isLoopbackRemote("localhost"))
	require.False(t, isLoopbackRemote("10.0.0.2:5000"))
	require.False(t, isLoopbackRemote(""))
}
