package poller

import (
	"errors"
	"time"
)

// FD 表示文件描述符。
type FD = int

// ErrPlatformNotSupported 当前平台没有可用的就绪通知机制。
var ErrPlatformNotSupported = errors.New("poller: platform not supported (requires epoll or kqueue)")

// Event 为一次 Wait 返回的单个就绪 fd。
type Event struct {
	Fd       FD
	Readable bool
	// Hangup 对端关闭或套接字出错（EPOLLHUP/EPOLLERR/EPOLLRDHUP 或 EV_EOF）。
	Hangup bool
}

// Poller 封装操作系统的水平触发就绪通知。
// Register/Unregister/Wait 只能在同一个 goroutine 中调用；Wake 可以从任意 goroutine 调用。
type Poller interface {
	// Register 关注 fd 的可读事件。
	Register(fd FD) error
	// Unregister 取消关注。关闭 fd 之前应先调用，避免 fd 复用后收到旧事件。
	Unregister(fd FD) error
	// Wait 阻塞至少一个 fd 就绪或 timeout 到期，把结果写入 events 并返回条数。
	// 超时与 EINTR 返回 (0, nil)。timeout 必须为正数。
	Wait(events []Event, timeout time.Duration) (int, error)
	// Wake 让正在阻塞的 Wait 立即返回。
	Wake() error
	Close() error
}

func timeoutMillis(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms == 0 {
		ms = 1
	}
	return int(ms)
}
