// runner combines the qcore configuration, Application and main event loop
// into one-line execution of a program.
//
// The configuration is read from the YAML file named by the QCORE_CONFIG
// environment variable, or the defaults are used. In simple cases, a program
// can execute with:
//
//	runner.Application().Init(root, nil)
//	runner.Exec()
//
// An interrupt signal quits the main event loop.
package runner

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	qcore "github.com/CrimsonAS/qcore/core"
)

// ConfigEnv names the environment variable holding the configuration path.
const ConfigEnv = "QCORE_CONFIG"

// CloseTimeout bounds how long Exec waits for threads to finish.
var CloseTimeout = 10 * time.Second

var app *qcore.Application

// Config loads the configuration named by ConfigEnv.
func Config() (*qcore.Config, error) {
	path := os.Getenv(ConfigEnv)
	if path == "" {
		return qcore.DefaultConfig(), nil
	}
	return qcore.LoadConfig(path)
}

// Application returns the program's application, creating it on first use.
// It panics if the configuration cannot be loaded.
func Application() *qcore.Application {
	if app == nil {
		cfg, err := Config()
		if err != nil {
			panic(fmt.Sprintf("runner: %s", err))
		}
		if app, err = qcore.NewApplication(cfg); err != nil {
			panic(fmt.Sprintf("runner: %s", err))
		}
	}
	return app
}

// Run calls setup with the application, runs the main event loop and closes
// the application. It returns the exit code of the loop, or 1 if setup
// fails.
func Run(setup func(app *qcore.Application) error) int {
	a := Application()
	log := a.Logger()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), CloseTimeout)
		defer cancel()
		if err := a.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("threads did not finish")
		}
	}()

	if setup != nil {
		if err := setup(a); err != nil {
			log.Error().Err(err).Msg("setup failed")
			return 1
		}
	}

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-interrupts:
			log.Info().Msg("interrupted")
			a.Quit()
		case <-done:
		}
	}()

	return a.Exec()
}

// Exec runs the already set up application and exits the process with its
// exit code.
func Exec() {
	os.Exit(Run(nil))
}
