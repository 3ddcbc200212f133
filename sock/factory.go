package sock

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

var logger atomic.Pointer[slog.Logger]

// SetLogger 设置本包的日志输出，nil 恢复为 slog.Default()。
func SetLogger(l *slog.Logger) { logger.Store(l) }

func log() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return slog.Default()
}

// AttemptFunc 针对单个候选地址创建套接字；失败时必须自行关闭已创建的 fd。
type AttemptFunc func(c Candidate) (int, error)

// TryCandidates 按顺序尝试候选地址，返回第一个成功的 fd。
// 全部失败时返回 ErrNoUsableAddress，并包装最后一个错误。
func TryCandidates(cands []Candidate, attempt AttemptFunc) (int, error) {
	var last error
	for _, c := range cands {
		fd, err := attempt(c)
		if err == nil {
			return fd, nil
		}
		log().Debug("candidate failed", "addr", c.String(), "error", err)
		last = err
	}
	if last == nil {
		return -1, fmt.Errorf("%w: empty candidate list", ErrNoUsableAddress)
	}
	return -1, fmt.Errorf("%w: %w", ErrNoUsableAddress, last)
}

// CreateListeningSocket 创建在 port 上监听的 TCP 套接字，backlog 原样传给 listen。
// 返回的 fd 归调用方所有。
func CreateListeningSocket(ctx context.Context, port string, backlog int) (int, error) {
	cands, err := ResolveListening(ctx, port)
	if err != nil {
		return -1, err
	}
	return TryCandidates(cands, func(c Candidate) (int, error) {
		return BindAndListen(c, backlog)
	})
}

// CreateConnectedSocket 创建连接到 host:port 的阻塞式 TCP 套接字。
func CreateConnectedSocket(ctx context.Context, host, port string) (int, error) {
	cands, err := ResolveConnecting(ctx, host, port)
	if err != nil {
		return -1, err
	}
	return TryCandidates(cands, ConnectTo)
}
