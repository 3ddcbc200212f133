package tcpcore

import (
	"net"

	"github.com/legamerdc/tcpcore/sock"
)

// Conn 表示分发循环管理的一条客户端连接，是对 fd 的值类型包装。
// fd 为非阻塞模式：Read/Write 可能返回 EAGAIN，部分写由调用方自行处理。
type Conn struct {
	fd int
}

// Fd 返回底层文件描述符。
func (c Conn) Fd() int { return c.fd }

// Read 读取可用数据；对端关闭时返回 io.EOF。
func (c Conn) Read(p []byte) (int, error) { return sock.Read(c.fd, p) }

// Write 执行一次写入，返回实际写出的字节数。
func (c Conn) Write(p []byte) (int, error) { return sock.Write(c.fd, p) }

// RemoteAddr 返回对端地址，失败时返回 nil。
func (c Conn) RemoteAddr() net.Addr {
	addr, err := sock.PeerAddr(c.fd)
	if err != nil {
		return nil
	}
	return addr
}
