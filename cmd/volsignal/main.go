package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"volsignal/config"
	"volsignal/internal/logger"
	"volsignal/internal/service"
)

func main() {
	envFile := flag.String("env", ".env", "dotenv file loaded before reading the environment")
	once := flag.Bool("once", false, "run a single cycle, print it as JSON and exit")
	flag.Parse()

	config.LoadDotEnv(*envFile)
	logger.Init("volsignal", logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	svc, err := service.New(ctx, cfg, service.Deps{})
	if err != nil {
		slog.Error("init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if *once {
		res := svc.RunCycle(ctx)
		os.Stdout.Write(svc.Latest().JSON())
		os.Stdout.Write([]byte("\n"))
		svc.Close()
		if res.AllFailed() {
			os.Exit(2)
		}
		return
	}

	if err := svc.Run(ctx); err != nil {
		slog.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
