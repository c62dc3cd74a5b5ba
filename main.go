package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"parley/server/internal/httpapi"
	"parley/server/internal/store"
)

// Version is injected at build time with -ldflags.
var Version = "0.1.0-dev"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: server [flags] <port> <idle_timeout_seconds>\n")
	flag.PrintDefaults()
}

func main() {
	dbPath := flag.String("db", "parley.db", "SQLite database path")
	adminAddr := flag.String("admin-addr", "", "HTTP admin API listen address (empty disables)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Usage = usage
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// Maintenance subcommands (version, status) short-circuit the server.
	if RunCLI(flag.Args(), *dbPath) {
		return
	}

	if flag.NArg() < 2 {
		usage()
		os.Exit(2)
	}
	port, err := strconv.Atoi(flag.Arg(0))
	if err != nil || port < 1 || port > 65535 {
		fmt.Fprintf(os.Stderr, "invalid port %q\n", flag.Arg(0))
		os.Exit(2)
	}
	idleSecs, err := strconv.Atoi(flag.Arg(1))
	if err != nil || idleSecs < 1 {
		fmt.Fprintf(os.Stderr, "invalid idle timeout %q\n", flag.Arg(1))
		os.Exit(2)
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		slog.Error("open store", "err", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("close store", "err", closeErr)
		}
	}()

	srv := NewServer(fmt.Sprintf("0.0.0.0:%d", port), st, time.Duration(idleSecs)*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		slog.Info("received interrupt, shutting down")
		cancel()
	}()

	ready := make(chan string, 1)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx, ready) })
	if *adminAddr != "" {
		admin := httpapi.New(srv, st)
		g.Go(func() error { return admin.Run(ctx, *adminAddr) })
	}

	go func() {
		addr := <-ready
		// Readiness line on stdout; test harnesses wait for it.
		fmt.Printf("Server listening on %s (idle_timeout=%ds)\n", addr, idleSecs)
		slog.Info("listening", "addr", addr, "idle_timeout_s", idleSecs, "db", *dbPath)
	}()

	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
