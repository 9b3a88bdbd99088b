package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type status struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

func startServer(t *testing.T, h Handler) (*Server, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "karaoke.sock")
	s := NewServer(path, h)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Close)
	return s, path
}

func dial(t *testing.T, path string) (net.Conn, *bufio.Scanner) {
	t.Helper()
	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewScanner(conn)
}

func readLine(t *testing.T, conn net.Conn, sc *bufio.Scanner, v any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if !sc.Scan() {
		t.Fatalf("no line received: %v", sc.Err())
	}
	if err := json.Unmarshal(sc.Bytes(), v); err != nil {
		t.Fatalf("invalid line %q: %v", sc.Text(), err)
	}
}

func waitClients(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, got %d", n, s.Clients())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcastRetainsLatestState(t *testing.T) {
	s, path := startServer(t, nil)

	s.Broadcast("status", status{Type: "status", Status: "first"})
	s.Broadcast("status", status{Type: "status", Status: "second"})

	conn, sc := dial(t, path)
	var got status
	readLine(t, conn, sc, &got)
	if got.Status != "second" {
		t.Errorf("expected latest retained status, got %q", got.Status)
	}

	waitClients(t, s, 1)
	s.Broadcast("status", status{Type: "status", Status: "live"})
	readLine(t, conn, sc, &got)
	if got.Status != "live" {
		t.Errorf("expected live broadcast, got %q", got.Status)
	}
}

func TestIntentsAreDispatched(t *testing.T) {
	type syncIntent struct {
		Type  string `json:"type"`
		Index int    `json:"index"`
	}

	received := make(chan syncIntent, 1)
	handler := func(ctx context.Context, in Intent) (any, error) {
		switch in.Type {
		case "sync_line":
			var si syncIntent
			if err := in.Decode(&si); err != nil {
				return nil, err
			}
			received <- si
			return status{Type: "ack", Status: "ok"}, nil
		default:
			return nil, errors.New("unknown intent")
		}
	}
	_, path := startServer(t, handler)
	conn, sc := dial(t, path)

	conn.Write([]byte(`{"type":"sync_line","index":3}` + "\n"))
	select {
	case si := <-received:
		if si.Index != 3 {
			t.Errorf("expected index 3, got %d", si.Index)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("intent not dispatched")
	}
	var ack status
	readLine(t, conn, sc, &ack)
	if ack.Type != "ack" {
		t.Errorf("expected ack reply, got %+v", ack)
	}

	conn.Write([]byte(`{"type":"bogus"}` + "\n"))
	var reply errorReply
	readLine(t, conn, sc, &reply)
	if reply.Type != "error" || reply.Intent != "bogus" {
		t.Errorf("expected error reply for unknown intent, got %+v", reply)
	}

	conn.Write([]byte("not json\n"))
	readLine(t, conn, sc, &reply)
	if reply.Type != "error" {
		t.Errorf("expected error reply for invalid line, got %+v", reply)
	}
}

func TestSecondInstanceIsRejected(t *testing.T) {
	_, path := startServer(t, nil)

	other := NewServer(path, nil)
	err := other.Start()
	if err == nil {
		other.Close()
		t.Fatal("expected second instance to fail acquiring the lock")
	}
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestStaleLockFileIsReused(t *testing.T) {
	path := filepath.Join(t.TempDir(), "karaoke.sock")
	if err := os.WriteFile(path+".lock", []byte("999999\n"), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewServer(path, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("stale lock file should not block start: %v", err)
	}
	if pid, ok := ownerPID(path + ".lock"); !ok || pid != os.Getpid() {
		t.Errorf("lock file should hold our pid, got %d %v", pid, ok)
	}
	s.Close()

	if _, err := os.Stat(path + ".lock"); !os.IsNotExist(err) {
		t.Errorf("lock file should be removed on close, stat err = %v", err)
	}
}
