// Package chat 实现基于行的聊天室：每行广播给其他成员，新成员加入时回放最近的历史。
package chat

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/eapache/queue"
	"github.com/legamerdc/tcpcore"
	"github.com/legamerdc/tcpcore/internal/ring"
	"github.com/legamerdc/tcpcore/sock"
)

const (
	defaultHistory = 32
	defaultMaxLine = 1024
)

type Options struct {
	HistorySize int // 保留的历史行数，默认 32
	MaxLineLen  int // 单行上限，超出即断开，默认 1024
	Logger      *slog.Logger
}

type member struct {
	conn tcpcore.Conn
	name string
	buf  *ring.Buffer
}

// Room 是聊天室的共享状态，由服务端锁保护。
// OnNewClient 返回后分发循环仍可能因客户端上限或注册失败关闭该 fd 且不再通知，
// 因此新连接先进入 pending，首次可读（说明已被注册）时才成为成员并接收广播。
type Room struct {
	pending map[int]*member
	members map[int]*member
	history *queue.Queue
	size    int
	maxLine int
	scratch []byte
	log     *slog.Logger

	Joined     int64
	Left       int64
	Broadcasts int64
}

func NewRoom(opts Options) *Room {
	if opts.HistorySize <= 0 {
		opts.HistorySize = defaultHistory
	}
	if opts.MaxLineLen <= 0 {
		opts.MaxLineLen = defaultMaxLine
	}
	r := &Room{
		pending: make(map[int]*member),
		members: make(map[int]*member),
		history: queue.New(),
		size:    opts.HistorySize,
		maxLine: opts.MaxLineLen,
		log:     opts.Logger,
	}
	if r.log == nil {
		r.log = slog.Default().With("component", "chat")
	}
	// 行缓冲按 2 的幂取整，读缓冲与之对齐
	r.scratch = make([]byte, ring.New(r.maxLine).Cap())
	return r
}

// Handlers 返回聊天室的 handler，共享数据为 *Room。
func Handlers() tcpcore.HandlerSet[Room] {
	return tcpcore.HandlerSet[Room]{
		OnNewClient: onNewClient,
		OnCanRead:   onCanRead,
	}
}

// Members 返回在线人数
func (r *Room) Members() int { return len(r.members) }

// History 按时间顺序返回保留的历史行
func (r *Room) History() []string {
	out := make([]string, 0, r.history.Length())
	for i := 0; i < r.history.Length(); i++ {
		out = append(out, r.history.Get(i).(string))
	}
	return out
}

func onNewClient(c tcpcore.Conn, r *Room) tcpcore.Signal {
	m := &member{conn: c, name: "user" + strconv.Itoa(c.Fd()), buf: ring.New(r.maxLine)}
	greeting := fmt.Sprintf("* welcome %s, %d online\n", m.name, len(r.members)+1)
	if !send(c, greeting) {
		return tcpcore.CloseClient
	}
	for _, line := range r.History() {
		if !send(c, line) {
			return tcpcore.CloseClient
		}
	}
	// 同号 fd 的旧记录必然已失效，直接覆盖
	r.pending[c.Fd()] = m
	return tcpcore.Continue
}

// admit 把首次可读的连接转为正式成员
func (r *Room) admit(m *member) {
	fd := m.conn.Fd()
	delete(r.pending, fd)
	r.members[fd] = m
	r.Joined++
	r.broadcast(m, fmt.Sprintf("* %s joined\n", m.name))
	r.log.Info("member joined", "fd", fd, "members", len(r.members))
}

func onCanRead(c tcpcore.Conn, r *Room) tcpcore.Signal {
	m, ok := r.members[c.Fd()]
	if !ok {
		if m, ok = r.pending[c.Fd()]; !ok {
			// 广播失败时已被移出聊天室
			return tcpcore.CloseClient
		}
		r.admit(m)
	}
	free := m.buf.Free()
	if free == 0 {
		r.leave(m, "line too long")
		return tcpcore.CloseClient
	}
	n, err := c.Read(r.scratch[:free])
	if err != nil {
		if sock.WouldBlock(err) {
			return tcpcore.Continue
		}
		r.leave(m, "disconnected")
		return tcpcore.CloseClient
	}
	m.buf.Write(r.scratch[:n])

	for {
		line, ok := m.buf.NextLine()
		if !ok {
			break
		}
		switch string(line) {
		case "":
		case "/quit":
			r.leave(m, "quit")
			return tcpcore.CloseClient
		case "/who":
			if !send(c, fmt.Sprintf("* %d online\n", len(r.members))) {
				r.leave(m, "write failed")
				return tcpcore.CloseClient
			}
		default:
			msg := fmt.Sprintf("%s: %s\n", m.name, line)
			r.remember(msg)
			r.broadcast(m, msg)
		}
	}
	if m.buf.Free() == 0 {
		r.leave(m, "line too long")
		return tcpcore.CloseClient
	}
	return tcpcore.Continue
}

func (r *Room) remember(line string) {
	r.history.Add(line)
	for r.history.Length() > r.size {
		r.history.Remove()
	}
}

// broadcast 尽力发送给除 from 以外的成员，写失败的成员被移出聊天室，
// 其连接在下一次可读时由 handler 关闭。
func (r *Room) broadcast(from *member, line string) {
	r.Broadcasts++
	for fd, m := range r.members {
		if m == from {
			continue
		}
		if !send(m.conn, line) {
			delete(r.members, fd)
			r.Left++
			r.log.Warn("dropping member after failed write", "fd", fd)
		}
	}
}

func (r *Room) leave(m *member, reason string) {
	if _, ok := r.members[m.conn.Fd()]; !ok {
		return
	}
	delete(r.members, m.conn.Fd())
	r.Left++
	r.log.Info("member left", "fd", m.conn.Fd(), "reason", reason, "members", len(r.members))
	r.broadcast(m, fmt.Sprintf("* %s left\n", m.name))
}

// send 要求一次写完整行；部分写视为失败
func send(c tcpcore.Conn, line string) bool {
	n, err := c.Write([]byte(line))
	return err == nil && n == len(line)
}
