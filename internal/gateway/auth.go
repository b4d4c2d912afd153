package gateway

import (
	"crypto/subtle"
	"os"

	"github.com/soyeahso/gaia/internal/config"
)

// Auth modes for the operator WebSocket.
const (
	AuthModeToken    = "token"
	AuthModePassword = "password"
)

// AuthResult is the outcome of an authentication attempt.
type AuthResult struct {
	OK     bool   `json:"ok"`
	Method string `json:"method,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ResolvedAuth holds the credentials the operator console must present.
type ResolvedAuth struct {
	Mode     string
	Token    string
	Password string
}

// ResolveAuth resolves credentials from config, falling back to
// GAIA_GATEWAY_TOKEN and GAIA_GATEWAY_PASSWORD.
func ResolveAuth(cfg config.GatewayAuth) ResolvedAuth {
	auth := ResolvedAuth{Mode: cfg.Mode, Token: cfg.Token, Password: cfg.Password}
	if auth.Token == "" {
		auth.Token = os.Getenv("GAIA_GATEWAY_TOKEN")
	}
	if auth.Password == "" {
		auth.Password = os.Getenv("GAIA_GATEWAY_PASSWORD")
	}
	if auth.Mode == "" {
		auth.Mode = AuthModeToken
		if auth.Password != "" && auth.Token == "" {
			auth.Mode = AuthModePassword
		}
	}
	return auth
}

// Configured reports whether any operator credential is set. Without one
// the console refuses every connection.
func (a ResolvedAuth) Configured() bool {
	switch a.Mode {
	case AuthModeToken:
		return a.Token != ""
	case AuthModePassword:
		return a.Password != ""
	}
	return false
}

// Authorize checks client credentials against the resolved server auth.
func Authorize(server ResolvedAuth, client *ConnectAuth) AuthResult {
	if client == nil {
		return AuthResult{Reason: "no credentials provided"}
	}

	var want, got string
	switch server.Mode {
	case AuthModeToken:
		want, got = server.Token, client.Token
	case AuthModePassword:
		want, got = server.Password, client.Password
	default:
		return AuthResult{Reason: "unknown auth mode: " + server.Mode}
	}

	switch {
	case want == "":
		return AuthResult{Reason: "server " + server.Mode + " not configured"}
	case got == "":
		return AuthResult{Reason: server.Mode + " required"}
	case !safeEqual(got, want):
		return AuthResult{Reason: server.Mode + "_mismatch"}
	}
	return AuthResult{OK: true, Method: server.Mode}
}

// safeEqual compares in constant time without leaking length.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}
