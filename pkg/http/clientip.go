package xhttp

import (
	"strings"
)

// ClientIP returns the caller address, preferring the first X-Forwarded-For
// entry, then X-Real-IP, then the socket peer.
func ClientIP(ctx *RequestCtx) string {
	if xff := string(ctx.Request.Header.Peek("X-Forwarded-For")); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(string(ctx.Request.Header.Peek("X-Real-IP"))); ip != "" {
		return ip
	}
	return ctx.RemoteIP().String()
}
