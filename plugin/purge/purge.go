package purge

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	configv1 "github.com/omalloc/tavern/api/defined/v1/plugin"
	"github.com/omalloc/tavern/cache"
	"github.com/omalloc/tavern/contrib/log"
	"github.com/omalloc/tavern/internal/constants"
	"github.com/omalloc/tavern/plugin"
)

// Method is the HTTP method that triggers a purge, per spec.md §6.
const Method = "PURGE"

var _ configv1.Plugin = (*PurgePlugin)(nil)

type option struct {
	Token      string `json:"token" yaml:"token"`
	HeaderName string `json:"header_name" yaml:"header_name"` // default `Purge-Type`
}

type PurgePlugin struct {
	log *log.Helper
	opt *option
}

func init() {
	plugin.Register("purge", NewPurgePlugin)
}

func (r *PurgePlugin) Start(ctx context.Context) error {
	return nil
}

func (r *PurgePlugin) Stop(ctx context.Context) error {
	return nil
}

func (r *PurgePlugin) AddRouter(router *http.ServeMux) {}

func (r *PurgePlugin) HandleFunc(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		// skip non-PURGE requests, e.g. curl -X PURGE http://www.example.com/
		if req.Method != Method {
			next(w, req)
			return
		}

		if r.opt.Token != "" {
			auth := req.Header.Get("Authorization")
			if auth != "Bearer "+r.opt.Token {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		}

		storeURL := req.Header.Get(constants.InternalStoreURL)
		if storeURL == "" {
			storeURL = req.URL.String()
		}
		r.log.Debugf("purge request received for %s", storeURL)

		current := cache.Current()
		if current == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		var removed int
		if strings.EqualFold(req.Header.Get(r.opt.HeaderName), constants.PurgeHeaderAll) {
			removed = current.PurgeAll()
		} else {
			removed = current.Purge(storeURL)
		}

		payload := []byte(fmt.Sprintf(`{"message":"success","removed":%d}`, removed))
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	}
}

func NewPurgePlugin(opts configv1.Option, log *log.Helper) (configv1.Plugin, error) {
	opt := &option{
		HeaderName: constants.PurgeHeaderName,
	}
	if err := opts.Unmarshal(opt); err != nil {
		return nil, err
	}

	return &PurgePlugin{
		log: log,
		opt: opt,
	}, nil
}
