package client

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/legamerdc/tcpcore/sock"
)

// Client 是面向行协议的阻塞式 TCP 客户端。
// 连接由 sock.CreateConnectedSocket 建立，再交给 net 包管理。
type Client struct {
	conn net.Conn
	rd   *bufio.Reader
	mu   sync.Mutex // 串行化写
}

// Dial 依次尝试 host:port 解析出的候选地址，返回第一个连接成功的客户端。
func Dial(ctx context.Context, host, port string) (*Client, error) {
	fd, err := sock.CreateConnectedSocket(ctx, host, port)
	if err != nil {
		return nil, err
	}
	conn, err := fromFD(fd)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, rd: bufio.NewReader(conn)}, nil
}

// fromFD 接管 fd：net.FileConn 会复制一份，原 fd 随即关闭。
func fromFD(fd int) (net.Conn, error) {
	f := os.NewFile(uintptr(fd), fmt.Sprintf("tcp:%d", fd))
	defer f.Close()
	conn, err := net.FileConn(f)
	if err != nil {
		return nil, fmt.Errorf("client: wrap fd %d: %w", fd, err)
	}
	return conn, nil
}

// ReadLine 读取一行，不含结尾的 "\n" 或 "\r\n"。
func (c *Client) ReadLine() (string, error) {
	line, err := c.rd.ReadString('\n')
	if err != nil {
		// 不完整的最后一行原样返回
		return line, err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Write 完整写出 p。
func (c *Client) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(p)
}

// WriteLine 写出 s 并补上换行。
func (c *Client) WriteLine(s string) error {
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	_, err := c.Write([]byte(s))
	return err
}

// SetDeadline 同时设置读写截止时间，零值表示不超时。
func (c *Client) SetDeadline(t time.Time) error { return c.conn.SetDeadline(t) }

func (c *Client) Conn() net.Conn { return c.conn }

func (c *Client) LocalAddr() net.Addr { return c.conn.LocalAddr() }

func (c *Client) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *Client) Close() error { return c.conn.Close() }
