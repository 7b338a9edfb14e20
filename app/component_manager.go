package app

import (
	"sync/atomic"

	"github.com/crowcoin/crowd/infrastructure/config"
	"github.com/crowcoin/crowd/infrastructure/scheduler"
	"github.com/crowcoin/crowd/server/httpserver"
	"github.com/crowcoin/crowd/server/rpc"
)

// ComponentManager is a wrapper for all the crowd services
type ComponentManager struct {
	cfg        *config.Config
	scheduler  *scheduler.Scheduler
	httpServer *httpserver.Server
	rpcServer  *rpc.Server

	started, shutdown int32
}

// NewComponentManager returns a new ComponentManager instance.
// Use Start() to begin all services within this ComponentManager
func NewComponentManager(cfg *config.Config) (*ComponentManager, error) {
	sched := scheduler.New()

	httpServer, err := httpserver.New(cfg)
	if err != nil {
		return nil, err
	}

	var rpcServer *rpc.Server
	if !cfg.DisableRPC {
		rpcServer = rpc.NewServer(cfg, httpServer, sched)
	}

	return &ComponentManager{
		cfg:        cfg,
		scheduler:  sched,
		httpServer: httpServer,
		rpcServer:  rpcServer,
	}, nil
}

// Start launches all the crowd services.
func (a *ComponentManager) Start() {
	// Already started?
	if atomic.AddInt32(&a.started, 1) != 1 {
		return
	}

	log.Trace("Starting crowd")

	spawn(a.scheduler.Service)
	// Handlers are registered before the HTTP server starts serving.
	if a.rpcServer != nil {
		a.rpcServer.Start()
	}
	a.httpServer.Start()
}

// Stop gracefully shuts down all the crowd services.
func (a *ComponentManager) Stop() {
	// Make sure this only happens once.
	if atomic.AddInt32(&a.shutdown, 1) != 1 {
		log.Infof("Crowd is already in the process of shutting down")
		return
	}

	log.Warnf("Crowd shutting down")

	// Interrupt first so every service stops taking on new work, then
	// wait for the in-flight work to finish. Handlers are unregistered
	// only once the HTTP server was interrupted.
	a.httpServer.Interrupt()
	if a.rpcServer != nil {
		a.rpcServer.Stop()
	}
	a.httpServer.Stop()
	a.scheduler.Stop(false)
	a.scheduler.WaitExit()
}
