package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/claude/liftlog/internal/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// liftlog-mcp bridges an MCP client (stdio transport) to a running LiftLog
// daemon. All session state lives in the daemon; this binary only proxies
// tool calls over the REST API.
func main() {
	serverURL := flag.String("url", envOr("LIFTLOG_URL", "http://localhost:8080"), "LiftLog server base URL")
	apiKey := flag.String("api-key", os.Getenv("LIFTLOG_API_KEY"), "API key for the LiftLog server")
	flag.Parse()

	// Logs go to stderr: stdout carries the MCP protocol.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *apiKey == "" {
		log.Error("no API key: set -api-key or LIFTLOG_API_KEY")
		os.Exit(1)
	}

	src := mcp.NewHTTPClient(*serverURL, *apiKey)
	s := mcp.New(src, Version, log)

	log.Info("liftlog-mcp starting", "url", *serverURL, "version", Version)
	if err := server.ServeStdio(s); err != nil {
		log.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
