// Package app is the process lifecycle runner, replacing the teacher's
// contrib/kratos-shaped App (kratos.New(...).Run()) whose source was not
// retrieved. A small, dependency-free lifecycle: start every registered
// transport.Server in its own goroutine, wait for SIGINT/SIGTERM, then
// stop each with the configured timeout.
package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/omalloc/tavern/contrib/log"
	"github.com/omalloc/tavern/contrib/transport"
)

// Option configures an App.
type Option func(*App)

func ID(id string) Option           { return func(a *App) { a.id = id } }
func Name(name string) Option       { return func(a *App) { a.name = name } }
func Version(version string) Option { return func(a *App) { a.version = version } }
func StopTimeout(d time.Duration) Option {
	return func(a *App) { a.stopTimeout = d }
}
func Logger(l log.Logger) Option { return func(a *App) { a.logger = log.NewHelper(l) } }
func Server(servers ...transport.Server) Option {
	return func(a *App) { a.servers = append(a.servers, servers...) }
}

// App holds the set of transport.Server instances that make up one
// running process.
type App struct {
	id          string
	name        string
	version     string
	stopTimeout time.Duration
	logger      *log.Helper
	servers     []transport.Server

	cancel context.CancelFunc
}

// New builds an App from options.
func New(opts ...Option) *App {
	a := &App{
		stopTimeout: 30 * time.Second,
		logger:      log.NewHelper(log.GetLogger()),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts every server, blocks until SIGINT/SIGTERM, then stops them
// all within the configured timeout.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.logger.Infof("app %s (%s) version %s starting with %d server(s)", a.name, a.id, a.version, len(a.servers))

	var wg sync.WaitGroup
	errs := make(chan error, len(a.servers))

	for _, srv := range a.servers {
		wg.Add(1)
		go func(s transport.Server) {
			defer wg.Done()
			if err := s.Start(ctx); err != nil {
				errs <- err
			}
		}(srv)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		a.logger.Infof("received shutdown signal")
	case err := <-errs:
		a.logger.Errorf("server exited with error: %v", err)
	}

	return a.Stop()
}

// Stop stops every server with the configured timeout, joining errors.
func (a *App) Stop() error {
	if a.cancel != nil {
		a.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.stopTimeout)
	defer cancel()

	var errs []error
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, srv := range a.servers {
		wg.Add(1)
		go func(s transport.Server) {
			defer wg.Done()
			if err := s.Stop(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(srv)
	}
	wg.Wait()

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
