package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/thriveup/internal/config"
	"github.com/matheus3301/thriveup/internal/daemon"
	"github.com/matheus3301/thriveup/internal/session"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	backendFlag := flag.String("backend", "", "document store backend: firestore or memory (overrides config)")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Resolve(session.ConfigPath(), session.EnvPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *backendFlag != "" {
		cfg.Backend = *backendFlag
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}

	app := fx.New(
		daemon.Module(daemon.Params{SessionName: sessionName, Config: cfg}),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
	)

	app.Run()
}
