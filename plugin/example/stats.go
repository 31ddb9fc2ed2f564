// Package example is a reference plugin: it serves a fixed JSON
// identifier ({"plugin":"stats"}) at /plugin/stats, showing the minimal
// shape a plugin needs (Start/Stop/AddRouter/HandleFunc) without touching
// the request path. It reports no cache statistics.
package example

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	pluginv1 "github.com/omalloc/tavern/api/defined/v1/plugin"
	"github.com/omalloc/tavern/contrib/log"
	"github.com/omalloc/tavern/plugin"
)

var _ pluginv1.Plugin = (*StatsPlugin)(nil)

type StatsPlugin struct {
	log *log.Helper
}

func init() {
	plugin.Register("stats", NewStatsPlugin)
}

func (p *StatsPlugin) Start(ctx context.Context) error { return nil }
func (p *StatsPlugin) Stop(ctx context.Context) error  { return nil }

func (p *StatsPlugin) AddRouter(router *http.ServeMux) {
	router.Handle("/plugin/stats", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		payload := []byte(`{"plugin":"stats"}`)
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	}))
}

func (p *StatsPlugin) HandleFunc(next http.HandlerFunc) http.HandlerFunc {
	return next
}

func NewStatsPlugin(opts pluginv1.Option, logger *log.Helper) (pluginv1.Plugin, error) {
	var cfg struct{}
	if err := opts.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("example: %w", err)
	}
	return &StatsPlugin{log: logger}, nil
}
