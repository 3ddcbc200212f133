//go:build linux

package sock

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/legamerdc/tcpcore/internal/netutil"
	"golang.org/x/sys/unix"
)

func openFDs(t *testing.T) int {
	t.Helper()
	n, err := netutil.OpenFDs()
	if err != nil {
		t.Fatalf("OpenFDs: %v", err)
	}
	return n
}

func loopback(port int) Candidate {
	return newCandidate(net.IPv4(127, 0, 0, 1), "", port)
}

// 192.0.2.0/24 为 TEST-NET-1，本机不持有该地址，bind 必然失败
func unbindable() Candidate {
	return newCandidate(net.IPv4(192, 0, 2, 1), "", 0)
}

func TestTryCandidatesReturnsFirstSuccessInOrder(t *testing.T) {
	before := openFDs(t)
	var tried []string
	attempt := func(c Candidate) (int, error) {
		tried = append(tried, c.String())
		return BindAndListen(c, 1)
	}
	first := loopback(0)
	second := newCandidate(net.IPv4(127, 0, 0, 2), "", 0)
	fd, err := TryCandidates([]Candidate{unbindable(), first, second}, attempt)
	if err != nil {
		t.Fatalf("TryCandidates: %v", err)
	}
	defer Close(fd)

	if len(tried) != 2 {
		t.Fatalf("expected to stop after the first success, tried %v", tried)
	}
	addr, err := LocalAddr(fd)
	if err != nil {
		t.Fatalf("LocalAddr: %v", err)
	}
	if !addr.IP.Equal(first.IP) {
		t.Fatalf("socket bound to %v, want %v", addr.IP, first.IP)
	}
	// 只应多出返回的那一个 fd，失败候选的半成品套接字必须已关闭
	if after := openFDs(t); after != before+1 {
		t.Fatalf("descriptor leak: before=%d after=%d", before, after)
	}
}

func TestTryCandidatesAllFail(t *testing.T) {
	before := openFDs(t)
	fd, err := TryCandidates([]Candidate{unbindable(), unbindable()}, func(c Candidate) (int, error) {
		return BindAndListen(c, 1)
	})
	if fd != -1 {
		t.Fatalf("expected fd -1, got %d", fd)
	}
	if !errors.Is(err, ErrNoUsableAddress) {
		t.Fatalf("expected ErrNoUsableAddress, got %v", err)
	}
	var se *SocketError
	if !errors.As(err, &se) || se.Op != "bind" {
		t.Fatalf("expected the last bind error to be wrapped, got %v", err)
	}
	if after := openFDs(t); after != before {
		t.Fatalf("descriptor leak: before=%d after=%d", before, after)
	}
}

func TestTryCandidatesEmpty(t *testing.T) {
	_, err := TryCandidates(nil, ConnectTo)
	if !errors.Is(err, ErrNoUsableAddress) {
		t.Fatalf("expected ErrNoUsableAddress, got %v", err)
	}
}

func TestResolveListeningOrder(t *testing.T) {
	cands, err := ResolveListening(context.Background(), "8080")
	if err != nil {
		t.Fatalf("ResolveListening: %v", err)
	}
	if len(cands) != 2 || cands[0].Family != unix.AF_INET || cands[1].Family != unix.AF_INET6 {
		t.Fatalf("unexpected candidates %+v", cands)
	}
	for _, c := range cands {
		if c.Port != 8080 || c.SockType != unix.SOCK_STREAM {
			t.Fatalf("unexpected candidate %+v", c)
		}
	}
}

func TestResolveErrors(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		fn   func() error
	}{
		{"empty port", func() error { _, err := ResolveListening(ctx, ""); return err }},
		{"bad service", func() error { _, err := ResolveListening(ctx, "no-such-service-xyz"); return err }},
		{"bad host", func() error { _, err := ResolveConnecting(ctx, "host.invalid", "80"); return err }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.fn()
			if !errors.Is(err, ErrResolution) {
				t.Fatalf("expected ErrResolution, got %v", err)
			}
			var re *ResolutionError
			if !errors.As(err, &re) || re.Err == nil {
				t.Fatalf("expected underlying diagnostic, got %v", err)
			}
		})
	}
}

func TestResolveConnectingLiteral(t *testing.T) {
	cands, err := ResolveConnecting(context.Background(), "::1", "9000")
	if err != nil {
		t.Fatalf("ResolveConnecting: %v", err)
	}
	if len(cands) != 1 || cands[0].Family != unix.AF_INET6 || cands[0].Port != 9000 {
		t.Fatalf("unexpected candidates %+v", cands)
	}
}

func TestCreateListeningAndConnected(t *testing.T) {
	ctx := context.Background()
	lfd, err := CreateListeningSocket(ctx, "0", 4)
	if err != nil {
		t.Fatalf("CreateListeningSocket: %v", err)
	}
	defer Close(lfd)
	addr, err := LocalAddr(lfd)
	if err != nil {
		t.Fatalf("LocalAddr: %v", err)
	}
	if addr.Port == 0 {
		t.Fatalf("expected an ephemeral port")
	}

	cfd, err := CreateConnectedSocket(ctx, "127.0.0.1", strconv.Itoa(addr.Port))
	if err != nil {
		t.Fatalf("CreateConnectedSocket: %v", err)
	}
	defer Close(cfd)

	sfd, err := Accept(lfd)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	defer Close(sfd)

	if _, err := Write(cfd, []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	buf := make([]byte, 16)
	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := Read(sfd, buf)
		if err == unix.EAGAIN && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if string(buf[:n]) != "hello" {
			t.Fatalf("got %q", buf[:n])
		}
		break
	}

	peer, err := PeerAddr(sfd)
	if err != nil || !peer.IP.IsLoopback() {
		t.Fatalf("PeerAddr: %v %v", peer, err)
	}
}

func TestConnectRefusedIsNoUsableAddress(t *testing.T) {
	ctx := context.Background()
	// 先占用一个端口再关闭，得到一个大概率无人监听的端口
	lfd, err := CreateListeningSocket(ctx, "0", 1)
	if err != nil {
		t.Fatalf("CreateListeningSocket: %v", err)
	}
	addr, _ := LocalAddr(lfd)
	Close(lfd)

	before := openFDs(t)
	_, err = CreateConnectedSocket(ctx, "127.0.0.1", strconv.Itoa(addr.Port))
	if !errors.Is(err, ErrNoUsableAddress) {
		t.Fatalf("expected ErrNoUsableAddress, got %v", err)
	}
	if !errors.Is(err, unix.ECONNREFUSED) {
		t.Fatalf("expected ECONNREFUSED to be wrapped, got %v", err)
	}
	if after := openFDs(t); after != before {
		t.Fatalf("descriptor leak: before=%d after=%d", before, after)
	}
}

func TestReadReportsEOF(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer Close(fds[0])
	Close(fds[1])
	if _, err := Read(fds[0], make([]byte, 4)); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}
