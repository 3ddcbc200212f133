package tcpcore

// Signal 为 handler 返回给分发循环的控制信号。
type Signal int

const (
	// Continue 默认行为：接受新连接 / 保持连接。
	Continue Signal = iota
	// CloseClient 关闭并注销当前连接。
	CloseClient
	// StopServer 处理完当前批次后进入关闭流程。
	StopServer
)

func (s Signal) String() string {
	switch s {
	case Continue:
		return "continue"
	case CloseClient:
		return "close_client"
	case StopServer:
		return "stop_server"
	}
	return "unknown"
}

// HandlerFunc 在分发 goroutine 中、持有服务端互斥锁时调用，要求快速且无阻塞返回。
// 在 handler 内调用同一 Server 的 RequestStop/WithShared 会死锁，应返回 StopServer。
type HandlerFunc[T any] func(c Conn, shared *T) Signal

// HandlerSet 为两个可选回调；nil 表示采用默认动作（Continue）。
type HandlerSet[T any] struct {
	// OnNewClient 在 accept 之后、加入 registry 之前调用。
	OnNewClient HandlerFunc[T]
	// OnCanRead 在连接可读（含对端关闭）时调用。
	OnCanRead HandlerFunc[T]
}
