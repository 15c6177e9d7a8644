package mcp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	headerAgentID   = "x-agent-id"
	headerTS        = "x-ts"
	headerSignature = "x-signature"
	headerNonce     = "x-nonce"
)

// maxSkew bounds the distance between x-ts and the server clock.
const maxSkew = 5 * time.Minute

func canonicalString(ts, method, pathname string, rawBody []byte) string {
	return ts + "\n" + strings.ToUpper(method) + "\n" + pathname + "\n" + string(rawBody)
}

func canonicalStringV2(ts, method, pathname, agentID, nonce string, rawBody []byte) string {
	return ts + "\n" + strings.ToUpper(method) + "\n" + pathname + "\n" + strings.TrimSpace(agentID) + "\n" + strings.TrimSpace(nonce) + "\n" + string(rawBody)
}

func signHMAC(secret []byte, canonical string) string {
	h := hmac.New(sha256.New, secret)
	_, _ = h.Write([]byte(canonical))
	return hex.EncodeToString(h.Sum(nil))
}

// Sign returns the headers for a v2 signed request. Clients and tests use it.
func Sign(secret []byte, agentID, nonce string, now time.Time, method, pathname string, body []byte) http.Header {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	h := http.Header{}
	h.Set(headerAgentID, agentID)
	h.Set(headerTS, ts)
	h.Set(headerNonce, nonce)
	h.Set(headerSignature, signHMAC(secret, canonicalStringV2(ts, method, pathname, agentID, nonce, body)))
	return h
}

type hmacVerifyResult struct {
	SessionKey string
	Signature  string
	HTTPStatus int
	Message    string
}

func verifyHMAC(r *http.Request, rawBody []byte, secret []byte, now time.Time, allowLegacy bool) hmacVerifyResult {
	agentID := strings.TrimSpace(r.Header.Get(headerAgentID))
	if agentID == "" {
		return hmacVerifyResult{HTTPStatus: http.StatusUnauthorized, Message: "missing x-agent-id"}
	}
	tsStr := strings.TrimSpace(r.Header.Get(headerTS))
	if tsStr == "" {
		return hmacVerifyResult{HTTPStatus: http.StatusUnauthorized, Message: "missing x-ts"}
	}
	sig := strings.ToLower(strings.TrimSpace(r.Header.Get(headerSignature)))
	if sig == "" {
		return hmacVerifyResult{HTTPStatus: http.StatusUnauthorized, Message: "missing x-signature"}
	}
	nonce := strings.TrimSpace(r.Header.Get(headerNonce))
	if nonce == "" && !allowLegacy {
		return hmacVerifyResult{HTTPStatus: http.StatusUnauthorized, Message: "missing x-nonce"}
	}

	tsMS, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return hmacVerifyResult{HTTPStatus: http.StatusUnauthorized, Message: "bad x-ts"}
	}
	if d := now.UnixMilli() - tsMS; d > maxSkew.Milliseconds() || d < -maxSkew.Milliseconds() {
		return hmacVerifyResult{HTTPStatus: http.StatusUnauthorized, Message: "x-ts outside window"}
	}

	if nonce != "" {
		exp := signHMAC(secret, canonicalStringV2(tsStr, r.Method, r.URL.Path, agentID, nonce, rawBody))
		if hmac.Equal([]byte(sig), []byte(exp)) {
			return hmacVerifyResult{SessionKey: agentID, Signature: sig}
		}
	}
	if allowLegacy {
		exp := signHMAC(secret, canonicalString(tsStr, r.Method, r.URL.Path, rawBody))
		if hmac.Equal([]byte(sig), []byte(exp)) {
			return hmacVerifyResult{SessionKey: agentID, Signature: sig}
		}
	}
	return hmacVerifyResult{HTTPStatus: http.StatusUnauthorized, Message: "bad signature"}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
