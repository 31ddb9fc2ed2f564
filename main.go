package main

import (
	"flag"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cloudflare/tableflip"
	"github.com/omalloc/proxy/selector"
	"github.com/omalloc/proxy/selector/once"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	pluginv1 "github.com/omalloc/tavern/api/defined/v1/plugin"
	"github.com/omalloc/tavern/cache"
	"github.com/omalloc/tavern/conf"
	"github.com/omalloc/tavern/contrib/app"
	"github.com/omalloc/tavern/contrib/config"
	"github.com/omalloc/tavern/contrib/config/provider/file"
	"github.com/omalloc/tavern/contrib/log"
	"github.com/omalloc/tavern/contrib/transport"
	"github.com/omalloc/tavern/pkg/encoding"
	"github.com/omalloc/tavern/pkg/encoding/json"
	"github.com/omalloc/tavern/plugin"
	_ "github.com/omalloc/tavern/plugin/example"
	_ "github.com/omalloc/tavern/plugin/purge"
	"github.com/omalloc/tavern/proxy"
	"github.com/omalloc/tavern/server"
)

var (
	id, _ = os.Hostname()

	// flagConf is the config flag.
	flagConf string = "config.yaml"
	// flagVerbose is the verbose flag.
	flagVerbose bool

	// Version is the version of the app.
	Version string = "no-set"
	GitHash string = "no-set"
	Built   string = "0"
)

func init() {
	// init flag
	flag.StringVar(&flagConf, "c", "config.yaml", "config file path")
	flag.BoolVar(&flagVerbose, "v", false, "enable verbose log")

	// init global encoding
	encoding.SetDefaultCodec(json.JSONCodec{})

	// init logger
	log.SetLogger(log.With(log.DefaultLogger, "ts", log.Timestamp(time.RFC3339), "pid", os.Getpid()))

	// init prometheus
	prometheus.Unregister(collectors.NewGoCollector())
	registerer := prometheus.WrapRegistererWithPrefix("tr_tavern_", prometheus.DefaultRegisterer)
	registerer.MustRegister(collectors.NewGoCollector(collectors.WithGoCollectorMemStatsMetricsDisabled()))
}

func main() {
	flag.Parse()

	c := config.New[conf.Bootstrap](config.WithSource(file.NewSource(flagConf)))
	defer c.Close()

	bc := &conf.Bootstrap{}
	if err := c.Scan(bc); err != nil {
		log.Fatal(err)
	}
	if err := conf.Validate(bc); err != nil {
		log.Fatal(err)
	}

	a, err := newApp(bc)
	if err != nil {
		log.Fatal(err)
	}

	if err := a.Run(); err != nil {
		log.Fatal(err)
	}
}

func newApp(bc *conf.Bootstrap) (*app.App, error) {
	stopTimeout := 120 * time.Second

	// graceful upgrade
	flip, err := tableflip.New(tableflip.Options{
		PIDFile:        bc.PidFile,
		UpgradeTimeout: stopTimeout,
	})
	if err != nil {
		panic(err)
	}

	// graceful upgrade if we have not parent process
	// remove unix socket file.
	if !flip.HasParent() {
		if strings.HasSuffix(bc.Server.Addr, ".sock") {
			_ = os.Remove(bc.Server.Addr) // remove unix socket
		}
	}

	// init the slice cache
	c, err := cache.New(sliceCacheConfig(bc.Slicing), log.NewHelper(log.GetLogger()))
	if err != nil {
		log.Fatalf("failed to initialize cache: %v", err)
	}
	cache.SetDefault(c)

	// init upstream
	nodes := make([]selector.Node, 0, len(bc.Upstream.Address))
	for _, addr := range bc.Upstream.Address {
		u, err := url.Parse(addr)
		if err != nil {
			log.Errorf("parsed upstream.address failed %v", err)
			continue
		}
		log.Infof("add upstream scheme: %s, host: %s", u.Scheme, u.Host)
		nodes = append(nodes, selector.NewNode(u.Scheme, u.Host, selector.RawMetadata("weight", "1")))
	}
	proxy.SetDefault(proxy.New(
		proxy.WithSelector(once.New()),
		proxy.WithInitialNodes(nodes),
	))

	// load plugin
	plugins := loadPlugin(log.GetLogger(), bc)

	// transport server
	servers := make([]transport.Server, 0)

	srv := server.NewServer(flip, bc, plugins)
	servers = append(servers, srv)

	for _, plug := range plugins {
		servers = append(servers, plug)
	}

	return app.New(
		app.ID(id),
		app.Name("tavern"),
		app.Version(Version),
		app.StopTimeout(stopTimeout),
		app.Logger(log.GetLogger()),
		app.Server(servers...),
	), nil
}

func sliceCacheConfig(sc *conf.Slicing) cache.Config {
	cfg := cache.Config{
		L1Bytes: sc.L1Bytes,
		TTL:     sc.CacheTTL,
	}
	if sc.L2 != nil {
		cfg.L2.DevicePath = sc.L2.DevicePath
		cfg.L2.TotalSize = sc.L2.TotalSize
		cfg.L2.BlockSize = sc.L2.BlockSize
		cfg.L2.EnableCompression = sc.L2.EnableCompression
		cfg.L2.TTL = sc.CacheTTL
	}
	return cfg
}

func loadPlugin(logger log.Logger, bc *conf.Bootstrap) []pluginv1.Plugin {
	ctxlog := log.NewHelper(logger)

	plugins := make([]pluginv1.Plugin, 0, len(bc.Plugin))
	for _, plug := range bc.Plugin {
		instance, err := plugin.Create(plug, ctxlog)
		if err != nil {
			ctxlog.Errorf("load plugin %s failed: %v", plug.Name, err)
			continue
		}
		ctxlog.Debugf("plugin %s loaded", plug.PluginName())
		plugins = append(plugins, instance)
	}
	return plugins
}
