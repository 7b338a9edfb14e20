package app

import (
	"fmt"
	"os"
	"time"

	"github.com/crowcoin/crowd/infrastructure/config"
	"github.com/crowcoin/crowd/infrastructure/os/signal"
	"github.com/crowcoin/crowd/util/panics"
	"github.com/crowcoin/crowd/util/profiling"
	"github.com/crowcoin/crowd/version"
)

// shutdownTimeout is how long the graceful shutdown may take before the
// process gives up and exits hard.
const shutdownTimeout = 2 * time.Minute

// StartApp starts the crowd app, and blocks until it shuts down.
func StartApp() error {
	interrupt := signal.InterruptListener()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	defer panics.HandlePanic(log, nil)

	log.Infof("Version %s", version.Version())

	if cfg.Profile != "" {
		profiling.Start(cfg.Profile, log)
	}

	componentManager, err := NewComponentManager(cfg)
	if err != nil {
		log.Errorf("Error creating the component manager: %+v", err)
		fmt.Fprintf(os.Stderr, "Error creating the component manager: %+v\n", err)
		return err
	}

	defer func() {
		log.Infof("Gracefully shutting down crowd...")

		shutdownDone := make(chan struct{})
		spawn(func() {
			componentManager.Stop()
			close(shutdownDone)
		})

		select {
		case <-shutdownDone:
		case <-time.After(shutdownTimeout):
			log.Criticalf("Graceful shutdown timed out after %s", shutdownTimeout)
		}
		log.Infof("Crowd shutdown complete")
	}()

	componentManager.Start()

	<-interrupt
	return nil
}
