// Command icm-mcp is the entry point for the ICM JSON-RPC tool server.
//
// Startup sequence:
//  1. Load configuration from environment variables (and an optional
//     YAML overlay file).
//  2. Open the SQLite store and apply pending additive migrations.
//  3. Construct the optional embedding capability.
//  4. Create the MCP server over the store.
//  5. Serve JSON-RPC 2.0 requests from stdin, writing responses to stdout.
//
// CRITICAL: all logging MUST go to stderr. Any bytes written to stdout
// that are not valid JSON-RPC 2.0 response frames corrupt the protocol.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rtkai/icm/internal/config"
	"github.com/rtkai/icm/internal/embedding"
	"github.com/rtkai/icm/internal/mcp"
	"github.com/rtkai/icm/internal/storage/sqlite"
)

func main() {
	// Redirect the default logger to stderr so any incidental log calls
	// from imported packages never pollute the stdout JSON-RPC stream.
	log.SetOutput(os.Stderr)
	log.SetPrefix("icm-mcp: ")
	log.SetFlags(log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	store, err := sqlite.Open(cfg.Store.Path)
	if err != nil {
		log.Fatalf("failed to open store at %q: %v", cfg.Store.Path, err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("received shutdown signal")
		cancel()
	}()

	// HashEmbedder is a dependency-free placeholder capability; deployments
	// wanting real semantic recall swap it for a model-backed Embedder.
	embedder := embedding.NewBreakerEmbedder(
		embedding.NewThrottledEmbedder(embedding.NewHashEmbedder(), 5, 10),
	)

	srv := mcp.NewServer(store, store,
		mcp.WithEmbedder(embedder),
		mcp.WithInstructions(cfg.MCP.Instructions),
		mcp.WithDefaultRecallLimit(cfg.Recall.Limit),
	)

	transport := mcp.NewStdioTransport(srv, os.Stdin, os.Stdout)

	log.Println("ready — serving JSON-RPC 2.0 on stdin/stdout")

	if err := transport.Serve(ctx); err != nil {
		// A non-nil error here is normal (context cancellation) or
		// indicates a fatal stdin/stdout problem; either way it is
		// informational only at shutdown.
		log.Printf("transport stopped: %v", err)
	}
}
