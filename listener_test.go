package tftp

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func startTestListener(t *testing.T, cfg ServerConfig) *Listener {
	t.Helper()
	cfg.IPAddress = net.ParseIP("127.0.0.1")
	cfg.Port = 0
	l, err := NewListener(cfg)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	go func() {
		if err := l.Run(); err != nil {
			t.Logf("listener exited: %v", err)
		}
	}()
	t.Cleanup(func() { l.Close() })
	return l
}

func testClientConfig(t *testing.T, l *Listener) ClientConfig {
	t.Helper()
	_, portStr, err := net.SplitHostPort(l.Addr().String())
	if err != nil {
		t.Fatalf("split listener addr: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse listener port: %v", err)
	}
	cfg := DefaultClientConfig()
	cfg.RemoteIPAddress = net.ParseIP("127.0.0.1")
	cfg.RemotePort = uint16(port)
	cfg.Options.Timeout = 300 * time.Millisecond
	cfg.RequestTimeout = 300 * time.Millisecond
	cfg.Private.MaxRetries = 10
	return cfg
}

func TestListenerPlainRRQ(t *testing.T) {
	dir := t.TempDir()
	content := bytes.Repeat([]byte("x"), 1500)
	if err := os.WriteFile(filepath.Join(dir, "f"), content, 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	cfg := DefaultServerConfig()
	cfg.Directory = dir
	l := startTestListener(t, cfg)

	clientCfg := testClientConfig(t, l)
	client := NewClient(clientCfg)

	outPath := filepath.Join(t.TempDir(), "out")
	if err := client.Download("f", outPath); err != nil {
		t.Fatalf("download failed: %v", err)
	}

	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("downloaded content mismatch: got %d bytes, want %d", len(got), len(content))
	}
}

func TestListenerRRQWithOptions(t *testing.T) {
	dir := t.TempDir()
	content := bytes.Repeat([]byte("y"), 3000)
	if err := os.WriteFile(filepath.Join(dir, "f"), content, 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	cfg := DefaultServerConfig()
	cfg.Directory = dir
	l := startTestListener(t, cfg)

	clientCfg := testClientConfig(t, l)
	clientCfg.Options.BlockSize = 1024
	size := uint64(0)
	clientCfg.Options.TransferSize = &size
	client := NewClient(clientCfg)

	outPath := filepath.Join(t.TempDir(), "out")
	if err := client.Download("f", outPath); err != nil {
		t.Fatalf("download failed: %v", err)
	}

	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if len(got) != len(content) {
		t.Errorf("expected %d bytes, got %d", len(content), len(got))
	}
}

func TestListenerWRQUpload(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultServerConfig()
	cfg.Directory = dir
	l := startTestListener(t, cfg)

	clientCfg := testClientConfig(t, l)
	client := NewClient(clientCfg)

	localPath := filepath.Join(t.TempDir(), "upload.bin")
	content := bytes.Repeat([]byte("z"), 2050)
	if err := os.WriteFile(localPath, content, 0o644); err != nil {
		t.Fatalf("seed local file: %v", err)
	}

	if err := client.Upload(localPath, "uploaded"); err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "uploaded"))
	if err != nil {
		t.Fatalf("read uploaded file: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("uploaded content mismatch: got %d bytes, want %d", len(got), len(content))
	}
}

func TestListenerReadOnlyRefusesWRQ(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultServerConfig()
	cfg.Directory = dir
	cfg.ReadOnly = true
	l := startTestListener(t, cfg)

	clientCfg := testClientConfig(t, l)
	client := NewClient(clientCfg)

	localPath := filepath.Join(t.TempDir(), "upload.bin")
	os.WriteFile(localPath, []byte("data"), 0o644)

	err := client.Upload(localPath, "uploaded")
	if err == nil {
		t.Fatal("expected read-only server to refuse WRQ")
	}
	wireErr, ok := err.(*WireError)
	if !ok || wireErr.Code != ErrAccessViolation {
		t.Errorf("expected AccessViolation WireError, got %v", err)
	}
}

func TestListenerPathTraversalRejected(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultServerConfig()
	cfg.Directory = dir
	l := startTestListener(t, cfg)

	clientCfg := testClientConfig(t, l)
	client := NewClient(clientCfg)

	err := client.Download("../etc/passwd", filepath.Join(t.TempDir(), "out"))
	if err == nil {
		t.Fatal("expected path traversal to be rejected")
	}
	wireErr, ok := err.(*WireError)
	if !ok || wireErr.Code != ErrAccessViolation {
		t.Errorf("expected AccessViolation WireError, got %v", err)
	}
}

func TestListenerSinglePortMode(t *testing.T) {
	dir := t.TempDir()
	content := bytes.Repeat([]byte("s"), 2200)
	os.WriteFile(filepath.Join(dir, "f"), content, 0o644)

	cfg := DefaultServerConfig()
	cfg.Directory = dir
	cfg.SinglePort = true
	l := startTestListener(t, cfg)

	clientCfg := testClientConfig(t, l)
	client := NewClient(clientCfg)

	outPath := filepath.Join(t.TempDir(), "out")
	if err := client.Download("f", outPath); err != nil {
		t.Fatalf("download failed: %v", err)
	}
	got, _ := os.ReadFile(outPath)
	if !bytes.Equal(got, content) {
		t.Errorf("single-port download mismatch: got %d bytes, want %d", len(got), len(content))
	}
}
