package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	startErr   error
	stopErr    error
	started    atomic.Bool
	stopped    atomic.Bool
	blockStart bool
	startedCh  chan struct{}
}

func (f *fakeServer) Start(ctx context.Context) error {
	f.started.Store(true)
	if f.startedCh != nil {
		close(f.startedCh)
	}
	if f.blockStart {
		<-ctx.Done()
		return nil
	}
	return f.startErr
}

func (f *fakeServer) Stop(ctx context.Context) error {
	f.stopped.Store(true)
	return f.stopErr
}

func TestApp_RunStopsEveryServerWhenOneExitsWithError(t *testing.T) {
	// s1 blocks until its context is cancelled (a normal long-running
	// server); s2 exits immediately with an error, which must drive Run
	// into its Stop() path and cancel s1's context in turn.
	s1 := &fakeServer{blockStart: true, startedCh: make(chan struct{})}
	s2 := &fakeServer{startErr: errors.New("listen failed"), startedCh: make(chan struct{})}

	a := New(Name("test"), Server(s1, s2), StopTimeout(time.Second))

	done := make(chan error, 1)
	go func() { done <- a.Run() }()

	<-s1.startedCh
	<-s2.startedCh

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after a server error")
	}

	assert.True(t, s1.stopped.Load())
	assert.True(t, s2.stopped.Load())
}

func TestApp_StopJoinsServerErrors(t *testing.T) {
	s1 := &fakeServer{stopErr: errors.New("boom1")}
	s2 := &fakeServer{stopErr: errors.New("boom2")}

	a := New(Server(s1, s2), StopTimeout(time.Second))
	err := a.Stop()

	require.Error(t, err)
	assert.ErrorContains(t, err, "boom1")
	assert.ErrorContains(t, err, "boom2")
}

func TestApp_StopWithNoErrorsReturnsNil(t *testing.T) {
	a := New(Server(&fakeServer{}), StopTimeout(time.Second))
	assert.NoError(t, a.Stop())
}
