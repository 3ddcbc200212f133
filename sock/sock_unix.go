//go:build linux || darwin

package sock

import (
	"io"
	"net"

	"github.com/legamerdc/tcpcore/internal/netutil"
	"golang.org/x/sys/unix"
)

func sockaddr(c Candidate) unix.Sockaddr {
	if c.Family == familyInet6 {
		sa := &unix.SockaddrInet6{Port: c.Port}
		copy(sa.Addr[:], c.IP.To16())
		if c.Zone != "" {
			if ifi, err := net.InterfaceByName(c.Zone); err == nil {
				sa.ZoneId = uint32(ifi.Index)
			}
		}
		return sa
	}
	sa := &unix.SockaddrInet4{Port: c.Port}
	copy(sa.Addr[:], c.IP.To4())
	return sa
}

func newSocket(c Candidate) (int, error) {
	fd, err := unix.Socket(c.Family, c.SockType, c.Protocol)
	if err != nil {
		return -1, &SocketError{Op: "socket", Candidate: c, Err: err}
	}
	unix.CloseOnExec(fd)
	return fd, nil
}

// BindAndListen 在单个候选地址上执行 socket+bind+listen，任一步失败都会关闭 fd。
func BindAndListen(c Candidate, backlog int) (int, error) {
	fd, err := newSocket(c)
	if err != nil {
		return -1, err
	}
	_ = netutil.SetReuseAddr(fd, true)
	if err := unix.Bind(fd, sockaddr(c)); err != nil {
		unix.Close(fd)
		return -1, &SocketError{Op: "bind", Candidate: c, Err: err}
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, &SocketError{Op: "listen", Candidate: c, Err: err}
	}
	return fd, nil
}

// ConnectTo 在单个候选地址上执行 socket+connect，失败时关闭 fd。
func ConnectTo(c Candidate) (int, error) {
	fd, err := newSocket(c)
	if err != nil {
		return -1, err
	}
	if err := connect(fd, sockaddr(c)); err != nil {
		unix.Close(fd)
		return -1, &SocketError{Op: "connect", Candidate: c, Err: err}
	}
	return fd, nil
}

// connect 处理阻塞 connect 被信号打断的情况：连接仍在后台建立，等待可写后读取 SO_ERROR。
func connect(fd int, sa unix.Sockaddr) error {
	err := unix.Connect(fd, sa)
	switch err {
	case nil, unix.EISCONN:
		return nil
	case unix.EINTR, unix.EINPROGRESS, unix.EALREADY:
	default:
		return err
	}
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		_, err := unix.Poll(pfd, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		return netutil.SocketError(fd)
	}
}

// Read 读取 fd；对端关闭时返回 io.EOF。
func Read(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Read(fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		if n == 0 && len(p) > 0 {
			return 0, io.EOF
		}
		return n, nil
	}
}

// Write 对 fd 做一次写入，可能只写出部分数据。
func Write(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Write(fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		return n, nil
	}
}

func Close(fd int) error { return unix.Close(fd) }

func SetNonblock(fd int, nonblock bool) error { return netutil.SetNonblock(fd, nonblock) }

// LocalAddr 返回 fd 绑定的本地地址（用于获取临时端口）。
func LocalAddr(fd int) (*net.TCPAddr, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, err
	}
	return tcpAddr(sa), nil
}

// PeerAddr 返回已连接 fd 的对端地址。
func PeerAddr(fd int) (*net.TCPAddr, error) {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return nil, err
	}
	return tcpAddr(sa), nil
}

func tcpAddr(sa unix.Sockaddr) *net.TCPAddr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(append([]byte(nil), a.Addr[:]...)), Port: a.Port}
	case *unix.SockaddrInet6:
		addr := &net.TCPAddr{IP: net.IP(append([]byte(nil), a.Addr[:]...)), Port: a.Port}
		if a.ZoneId != 0 {
			if ifi, err := net.InterfaceByIndex(int(a.ZoneId)); err == nil {
				addr.Zone = ifi.Name
			}
		}
		return addr
	}
	return &net.TCPAddr{}
}
