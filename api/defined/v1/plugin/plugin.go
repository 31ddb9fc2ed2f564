// Package plugin defines the contract plugin implementations (e.g.
// plugin/purge) satisfy, mirroring api/defined/v1/middleware's
// Option/Unmarshal shape for the plugin side of the tree.
package plugin

import (
	"context"
	"net/http"
)

// Option carries a plugin's configured options, decodable into a
// concrete struct.
type Option interface {
	Unmarshal(v any) error
}

// Plugin is a self-contained unit that can add its own routes onto the
// internal mux, wrap the main request handler, and participate in the
// app's start/stop lifecycle like any other transport.Server.
type Plugin interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	AddRouter(router *http.ServeMux)
	HandleFunc(next http.HandlerFunc) http.HandlerFunc
}
