package chargebridge

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/oddbit-project/chargebridge/config"
	"github.com/oddbit-project/chargebridge/log"
)

type RuntimeFn func(app interface{}) error

// Container is the application runtime: it owns the root context, the config
// provider and the shutdown sequencing.
type Container struct {
	Config    config.ConfigProvider
	Context   context.Context
	CancelCtx context.CancelFunc
	logger    *log.Logger
}

// NewContainer create new container runtime with the specified config provider and a new application context
func NewContainer(cfg config.ConfigProvider) *Container {
	ctx, cancelFn := context.WithCancel(context.Background())
	return &Container{
		Config:    cfg,
		Context:   ctx,
		CancelCtx: cancelFn,
		logger:    log.New("runtime"),
	}
}

// GetContext helper function to retrieve context
func (c *Container) GetContext() context.Context {
	return c.Context
}

// Run runs application container
// mainFn is a collection of non-blocking functions; they will be executed in order,
// each one receiving the Container object as the parameter.
// The main loop waits for an os signal; when one arrives the application is
// terminated in an orderly fashion by invoking Terminate()
func (c *Container) Run(mainFn ...RuntimeFn) {
	// capture os signals
	monitor := make(chan os.Signal, 1)
	signal.Notify(monitor, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for _, fn := range mainFn {
		if err := fn(c); err != nil {
			c.Terminate(err)
		}
	}

	for {
		select {
		case <-monitor:
			c.logger.Info("Shutting down application...")
			c.CancelCtx()

		case <-c.Context.Done():
			signal.Stop(monitor)
			c.Terminate(nil)
		}
	}
}

// AbortFatal aborts execution in case of fatal error
func (c *Container) AbortFatal(err error) {
	if err != nil {
		c.Terminate(err)
	}
}

// Terminate application execution and exit to operating system
func (c *Container) Terminate(err error) {
	retCode := 0
	if err != nil {
		retCode = -1
	}
	if c.Context != nil {
		// cancel context if not canceled yet
		if c.CancelCtx != nil && !errors.Is(c.Context.Err(), context.Canceled) {
			c.CancelCtx()
		}
	}
	// call shutdown handlers
	Shutdown(err)

	// exit to os
	os.Exit(retCode)
}
