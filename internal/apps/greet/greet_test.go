//go:build linux

package greet

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/legamerdc/tcpcore"
	"github.com/legamerdc/tcpcore/client"
	"github.com/legamerdc/tcpcore/sock"
)

type memRecorder struct {
	mu   sync.Mutex
	data map[int]string
}

func (m *memRecorder) Record(fd int, p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[fd] += string(p)
	return nil
}

func (m *memRecorder) total() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s string
	for _, v := range m.data {
		s += v
	}
	return s
}

func startGreet(t *testing.T, opts Options) (*tcpcore.Server[Stats], string) {
	t.Helper()
	lfd, err := sock.CreateListeningSocket(context.Background(), "0", 4)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { sock.Close(lfd) })
	addr, _ := sock.LocalAddr(lfd)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts.Logger = logger
	cfg := tcpcore.DefaultConfig()
	cfg.PollTimeout = 50 * time.Millisecond
	srv, err := tcpcore.New(lfd, Handlers(opts), &Stats{}, tcpcore.WithConfig(cfg), tcpcore.WithLogger(logger))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { srv.StopAndJoin() })
	return srv, strconv.Itoa(addr.Port)
}

func connect(t *testing.T, port string) *client.Client {
	t.Helper()
	c, err := client.Dial(context.Background(), "127.0.0.1", port)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	c.SetDeadline(time.Now().Add(3 * time.Second))
	return c
}

func stats(srv *tcpcore.Server[Stats]) Stats {
	var out Stats
	srv.WithShared(func(st *Stats) { out = *st })
	return out
}

func waitStats(t *testing.T, srv *tcpcore.Server[Stats], cond func(Stats) bool) Stats {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		st := stats(srv)
		if cond(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("stats never satisfied: %+v", st)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGreetingAndQuit(t *testing.T) {
	rec := &memRecorder{data: map[int]string{}}
	srv, port := startGreet(t, Options{Recorder: rec})

	c := connect(t, port)
	if line, err := c.ReadLine(); err != nil || line != "Hello World!" {
		t.Fatalf("greeting %q, %v", line, err)
	}
	c.WriteLine("hello")
	waitStats(t, srv, func(st Stats) bool { return st.Messages == 1 })
	c.WriteLine("quit")
	if _, err := c.ReadLine(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after quit, got %v", err)
	}

	st := waitStats(t, srv, func(st Stats) bool { return st.Closed == 1 })
	if st.Greeted != 1 || st.Bytes != int64(len("hello\nquit\n")) {
		t.Fatalf("stats %+v", st)
	}
	if got := rec.total(); got != "hello\nquit\n" {
		t.Fatalf("recorded %q", got)
	}
	if srv.NumClients() != 0 {
		t.Fatalf("clients=%d", srv.NumClients())
	}
}

func TestEchoAndShutdown(t *testing.T) {
	srv, port := startGreet(t, Options{Greeting: "hi\n", Echo: true})

	c := connect(t, port)
	if line, _ := c.ReadLine(); line != "hi" {
		t.Fatalf("greeting %q", line)
	}
	c.WriteLine("marco")
	if line, err := c.ReadLine(); err != nil || line != "marco" {
		t.Fatalf("echo %q, %v", line, err)
	}
	c.WriteLine("shutdown")
	select {
	case <-srv.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("server did not stop")
	}
	if srv.State() != tcpcore.StateStopped {
		t.Fatalf("state=%s", srv.State())
	}
}

func TestPeerCloseCounted(t *testing.T) {
	srv, port := startGreet(t, Options{})
	c := connect(t, port)
	c.ReadLine()
	c.Close()
	waitStats(t, srv, func(st Stats) bool { return st.Closed == 1 })
}

func TestCommand(t *testing.T) {
	cases := map[string]string{
		"quit\n":          "quit",
		"quit\r\n":        "quit",
		"hello\nshutdown": "shutdown",
		"  quit  \n":      "quit",
		"":                "",
	}
	for in, want := range cases {
		if got := command([]byte(in)); got != want {
			t.Errorf("command(%q) = %q, want %q", in, got, want)
		}
	}
}
