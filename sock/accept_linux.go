//go:build linux

package sock

import (
	"github.com/legamerdc/tcpcore/internal/netutil"
	"golang.org/x/sys/unix"
)

// Accept 从监听 fd 接受一个连接，新 fd 为非阻塞且带 CLOEXEC。
func Accept(lfd int) (int, error) {
	for {
		fd, _, err := unix.Accept4(lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return -1, err
		}
		_ = netutil.SetNoDelay(fd, true)
		return fd, nil
	}
}
