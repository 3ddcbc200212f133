// Package greet 是最小的问候服务：连接建立时发送问候语，之后记录收到的数据。
package greet

import (
	"bytes"
	"log/slog"

	"github.com/legamerdc/tcpcore"
	"github.com/legamerdc/tcpcore/sock"
)

const DefaultGreeting = "Hello World!\n"

// Recorder 接收客户端发来的原始数据，*transcript.Writer 满足该接口
type Recorder interface {
	Record(fd int, p []byte) error
}

type Options struct {
	Greeting   string // 为空时使用 DefaultGreeting
	Echo       bool   // 把收到的数据原样写回
	BufferSize int    // 单次读取上限，默认 1024
	Recorder   Recorder
	Logger     *slog.Logger
}

// Stats 为 handler 之间共享的计数，只能在服务端锁内读写（handler 内或 Server.WithShared）。
type Stats struct {
	Greeted  int64
	Messages int64
	Bytes    int64
	Closed   int64
}

type app struct {
	greeting []byte
	opts     Options
	buf      []byte // 只在分发 goroutine 中使用
	log      *slog.Logger
}

// Handlers 返回问候服务的 handler。
// 收到 "quit" 行时关闭该连接，收到 "shutdown" 行时停止整个服务。
func Handlers(opts Options) tcpcore.HandlerSet[Stats] {
	if opts.Greeting == "" {
		opts.Greeting = DefaultGreeting
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1024
	}
	a := &app{
		greeting: []byte(opts.Greeting),
		opts:     opts,
		buf:      make([]byte, opts.BufferSize),
		log:      opts.Logger,
	}
	if a.log == nil {
		a.log = slog.Default().With("component", "greet")
	}
	return tcpcore.HandlerSet[Stats]{
		OnNewClient: a.onNewClient,
		OnCanRead:   a.onCanRead,
	}
}

func (a *app) onNewClient(c tcpcore.Conn, st *Stats) tcpcore.Signal {
	if _, err := c.Write(a.greeting); err != nil {
		a.log.Warn("greeting failed", "fd", c.Fd(), "error", err)
		return tcpcore.CloseClient
	}
	st.Greeted++
	a.log.Info("client greeted", "fd", c.Fd(), "remote", c.RemoteAddr())
	return tcpcore.Continue
}

func (a *app) onCanRead(c tcpcore.Conn, st *Stats) tcpcore.Signal {
	n, err := c.Read(a.buf)
	if err != nil {
		if sock.WouldBlock(err) {
			return tcpcore.Continue
		}
		st.Closed++
		return tcpcore.CloseClient
	}
	data := a.buf[:n]
	st.Messages++
	st.Bytes += int64(n)
	a.log.Info("received", "fd", c.Fd(), "bytes", n, "data", string(bytes.TrimRight(data, "\r\n")))

	if a.opts.Recorder != nil {
		if err := a.opts.Recorder.Record(c.Fd(), data); err != nil {
			a.log.Warn("transcript write failed", "fd", c.Fd(), "error", err)
		}
	}
	if a.opts.Echo {
		// 发送缓冲满时丢弃本次回显
		if _, err := c.Write(data); err != nil && !sock.WouldBlock(err) {
			st.Closed++
			return tcpcore.CloseClient
		}
	}

	switch command(data) {
	case "quit":
		st.Closed++
		return tcpcore.CloseClient
	case "shutdown":
		a.log.Info("shutdown requested by client", "fd", c.Fd())
		return tcpcore.StopServer
	}
	return tcpcore.Continue
}

// command 返回数据中最后一个非空行
func command(data []byte) string {
	lines := bytes.Split(bytes.TrimRight(data, "\r\n"), []byte{'\n'})
	return string(bytes.TrimSpace(lines[len(lines)-1]))
}
