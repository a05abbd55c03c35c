package integration

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"connected/internal/app"
	"connected/internal/config"
	"connected/internal/logging"
)

const coordinatorToken = "coordinator-secret"

// syncBuffer collects log output written from many goroutines
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var linkToken = regexp.MustCompile(`/auth/callback\?token=([A-Za-z0-9_-]+)`)

// lastLinkToken returns the newest one-time link token written by the log mailer
func (b *syncBuffer) lastLinkToken() string {
	matches := linkToken.FindAllStringSubmatch(b.String(), -1)
	if len(matches) == 0 {
		return ""
	}
	return matches[len(matches)-1][1]
}

func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find a free port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	_ = listener.Close()
	return port
}

// StartTestApplication runs the full service on a temporary sqlite database
func StartTestApplication(t *testing.T, configure func(*config.Config)) (string, *syncBuffer) {
	t.Helper()

	port := freePort(t)
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = port
	cfg.HTTP.PublicURL = fmt.Sprintf("http://127.0.0.1:%d", port)
	cfg.Database.DSN = filepath.Join(t.TempDir(), "connected.db")
	cfg.Auth.JWTSecret = "integration-test-secret-0123456789"
	cfg.Coordinator.Token = coordinatorToken
	cfg.WebSocket.PingInterval = time.Second
	cfg.WebSocket.ReadTimeout = 5 * time.Second
	if configure != nil {
		configure(cfg)
	}

	logs := &syncBuffer{}
	logger := logging.New(&config.LogConfig{Level: "info", Format: "json"}, logs)

	application, err := app.NewApplication(cfg, logger)
	if err != nil {
		t.Fatalf("Failed to create application: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start application: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := application.Stop(ctx); err != nil {
			t.Logf("Application stop: %v", err)
		}
	})

	return "http://" + application.Addr(), logs
}
