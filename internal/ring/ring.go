package ring

import (
	"bytes"
	"errors"
)

var ErrFull = errors.New("ring: buffer full")

// Buffer 是定长环形字节缓冲，用于按连接累积未成行的输入。
// 不做同步，调用方保证单 goroutine 访问（分发循环内满足）。
type Buffer struct {
	buf      []byte
	mask     int
	readPos  int
	writePos int
}

// New 返回容量为 2 的幂次的缓冲，capacity 向上取整。
func New(capacity int) *Buffer {
	size := 1
	for size < capacity {
		size <<= 1
	}
	return &Buffer{buf: make([]byte, size), mask: size - 1}
}

func (b *Buffer) Cap() int { return len(b.buf) }

func (b *Buffer) Len() int { return b.writePos - b.readPos }

func (b *Buffer) Free() int { return b.Cap() - b.Len() }

// Write 整体写入 p；空间不足时不写入任何字节并返回 ErrFull。
func (b *Buffer) Write(p []byte) (int, error) {
	if len(p) > b.Free() {
		return 0, ErrFull
	}
	n := len(p)
	start := b.writePos & b.mask
	if end := start + n; end <= len(b.buf) {
		copy(b.buf[start:end], p)
	} else {
		l := len(b.buf) - start
		copy(b.buf[start:], p[:l])
		copy(b.buf[:n-l], p[l:])
	}
	b.writePos += n
	return n, nil
}

// Peek 返回最多 n 字节的副本或视图，不前进读指针。
func (b *Buffer) Peek(n int) []byte {
	if n <= 0 {
		return nil
	}
	if ln := b.Len(); n > ln {
		n = ln
	}
	start := b.readPos & b.mask
	end := start + n
	if end <= len(b.buf) {
		return b.buf[start:end]
	}
	// 跨越末尾时拷贝为连续切片
	out := make([]byte, n)
	l := len(b.buf) - start
	copy(out[:l], b.buf[start:])
	copy(out[l:], b.buf[:end-len(b.buf)])
	return out
}

// Discard 前进读指针，返回实际丢弃的字节数。
func (b *Buffer) Discard(n int) int {
	if ln := b.Len(); n > ln {
		n = ln
	}
	b.readPos += n
	return n
}

// NextLine 取出第一个完整行（不含 '\n'，去掉末尾 '\r'）；没有完整行时返回 false。
func (b *Buffer) NextLine() ([]byte, bool) {
	data := b.Peek(b.Len())
	i := bytes.IndexByte(data, '\n')
	if i < 0 {
		return nil, false
	}
	line := make([]byte, i)
	copy(line, data[:i])
	b.Discard(i + 1)
	return bytes.TrimSuffix(line, []byte{'\r'}), true
}

// Reset 清空缓冲
func (b *Buffer) Reset() {
	b.readPos, b.writePos = 0, 0
}
