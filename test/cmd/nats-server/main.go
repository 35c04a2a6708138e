// Package main provides a standalone NATS server for manual testing of
// the bundle engine against an external metadata store.
//
// The server runs in its own process, picks a free port via net.Listen,
// and prints connection information to stdout for the parent process.
package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

func main() {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Fatal("Failed to get available port:", err)
	}

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		log.Fatal("Failed to get TCP address from listener")
	}
	port := tcpAddr.Port

	// Small race window between closing the listener and the server
	// binding the port, acceptable for a test utility.
	_ = listener.Close()

	tempDir := filepath.Join(os.TempDir(), fmt.Sprintf("nsbundle-nats-%d", os.Getpid()))
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		log.Fatal("Failed to create temp directory:", err)
	}
	defer func() {
		_ = os.RemoveAll(tempDir)
	}()

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      port,
		JetStream: true,
		StoreDir:  tempDir,
		NoLog:     true,
		NoSigs:    true, // We handle signals ourselves
	}

	srv, err := server.NewServer(opts)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to create NATS server: %v\n", err)
		os.Exit(1) //nolint:gocritic // OS will clean up temp directory on process exit
	}

	go srv.Start()

	if !srv.ReadyForConnections(10 * time.Second) {
		_, _ = fmt.Fprintln(os.Stderr, "NATS server not ready within timeout")
		os.Exit(1)
	}

	// Connection info for the parent process.
	fmt.Printf("NATS_URL=nats://%s:%d\n", opts.Host, opts.Port)
	fmt.Println("NATS_READY=true")
	_, _ = fmt.Fprintf(os.Stderr, "NATS server started on port %d (PID: %d)\n", port, os.Getpid())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	_, _ = fmt.Fprintln(os.Stderr, "Shutting down NATS server...")
	srv.Shutdown()
	srv.WaitForShutdown()
	_, _ = fmt.Fprintln(os.Stderr, "NATS server stopped")
}
