package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"

	"github.com/paystream/go-session-client/internal/config"
	"github.com/paystream/go-session-client/internal/logging"
	"github.com/paystream/go-session-client/session"
)

// sessionctl logs into the billing platform backend and holds the session
// open - heartbeats, idle tracking, automatic refresh - until interrupted.
// It exists to exercise the full lifecycle against a real backend.
func main() {
	if err := run(); err != nil {
		log.Fatalf("Error running sessionctl: %s\n", err)
	}
	log.Printf("Session closed\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	email := flag.String("email", "", "login email (skipped when a persisted session restores)")
	password := flag.String("password", "", "login password")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Environment)
	displayAppname(cfg.AppName)

	controller, err := session.New(cfg, &consoleNavigator{path: "/dashboard"}, logger,
		session.WithIdleWarning(func(remaining time.Duration) {
			logger.Warn().Dur("remaining", remaining).Msg("session about to expire, interact to keep it alive")
		}))
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := controller.Bootstrap(ctx); err != nil {
		logger.Warn().Err(err).Msg("no session restored")
	}

	if !controller.IsAuthenticated() {
		if *email == "" || *password == "" {
			return errors.New("no persisted session and no -email/-password provided")
		}
		if err := controller.Login(ctx, *email, *password); err != nil {
			return err
		}
	}
	if user := controller.User(); user != nil {
		logger.Info().Str("user", user.Email).Str("role", string(user.Role)).Msg("session active")
	}

	go watchTransitions(controller, logger)

	waitForStopSignal()
	controller.Shutdown()
	return nil
}

func watchTransitions(controller *session.Controller, logger zerolog.Logger) {
	id, transitions := controller.Subscribe()
	defer controller.Unsubscribe(id)
	for status := range transitions {
		logger.Info().Str("status", string(status)).Msg("session transition")
		if status == session.StatusUnauthenticated {
			return
		}
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

// consoleNavigator stands in for the browser location bar. A forced logout
// just reports where the console would have been sent.
type consoleNavigator struct {
	path string
}

func (n *consoleNavigator) CurrentPath() string { return n.path }

func (n *consoleNavigator) Navigate(path string) {
	n.path = path
	log.Printf("redirected to %s\n", path)
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
