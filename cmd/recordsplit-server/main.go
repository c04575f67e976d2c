package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/recordsplit/recordsplit/pkg/common/log"
	"github.com/recordsplit/recordsplit/pkg/config"
)

func main() {
	cfg := parseFlags()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration: %s", err)
	}

	server := NewServer(cfg)
	if err := server.Start(); err != nil {
		log.Fatal("starting server: %v", err)
	}

	log.Info("recordsplit server started on %s", cfg.ListenAddr)
	setupGracefulShutdown(server)

	if err := server.Serve(); err != nil {
		log.Fatal("serving: %v", err)
	}
}

func parseFlags() *config.Config {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "recordsplit-server - a gRPC front end for the record split codec\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: recordsplit-server [options]\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Options:\n")
		flag.PrintDefaults()
	}

	listenAddr := flag.String("address", "localhost:50051", "Address to listen on")
	rowLimit := flag.Int("default-row-limit", 0, "Default Scan row limit applied when a request omits its own (0 = unlimited)")
	byteLimit := flag.Int64("default-byte-limit", 0, "Default Scan byte limit applied when a request omits its own (0 = unlimited)")
	splitLongRecords := flag.Bool("split-long-records", true, "Split records larger than the chunk size across multiple entries instead of rejecting them")
	oldVersionFormat := flag.Bool("old-version-format", false, "Serve records written in the legacy, version-free format")

	flag.Parse()

	cfg := config.NewDefaultConfig(*listenAddr)
	cfg.DefaultRowLimit = *rowLimit
	cfg.DefaultByteLimit = *byteLimit
	cfg.SplitLongRecordsDefault = *splitLongRecords
	cfg.OldVersionFormatDefault = *oldVersionFormat
	return cfg
}

func setupGracefulShutdown(server *Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info("Received signal %v, shutting down...", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Error("shutting down server: %v", err)
		}

		log.Info("Shutdown complete")
		os.Exit(0)
	}()
}
