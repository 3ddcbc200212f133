//go:build darwin

package sock

import (
	"syscall"

	"github.com/legamerdc/tcpcore/internal/netutil"
	"golang.org/x/sys/unix"
)

// Accept 从监听 fd 接受一个连接，新 fd 为非阻塞且带 CLOEXEC。
func Accept(lfd int) (int, error) {
	// darwin 没有 accept4，持有 ForkLock 避免 fd 在设置 CLOEXEC 之前泄漏到子进程
	syscall.ForkLock.RLock()
	fd, _, err := unix.Accept(lfd)
	if err == nil {
		unix.CloseOnExec(fd)
	}
	syscall.ForkLock.RUnlock()
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	_ = netutil.SetNoDelay(fd, true)
	return fd, nil
}
