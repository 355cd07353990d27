package shared

import (
	"context"
	"net/http"
)

// ClientInfo describes the caller of a request for audit records.
type ClientInfo struct {
	IP        string
	UserAgent string
}

type clientInfoContextKey struct{}

// ContextWithClientInfo stores the client info in context.
func ContextWithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientInfoContextKey{}, info)
}

// ClientInfoFromContext extracts the client info from context.
func ClientInfoFromContext(ctx context.Context) ClientInfo {
	info, _ := ctx.Value(clientInfoContextKey{}).(ClientInfo)
	return info
}

// ClientInfoFromRequest reads the remote address and user agent. RemoteAddr is
// expected to be rewritten by the RealIP middleware already.
func ClientInfoFromRequest(r *http.Request) ClientInfo {
	return ClientInfo{IP: r.RemoteAddr, UserAgent: r.UserAgent()}
}
