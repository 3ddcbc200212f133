// Package transcript 以 zstd 压缩流记录连接收到的数据，供离线回放。
//
// 每条记录依次为 uvarint(fd)、uvarint(unix 纳秒)、uvarint(len) 和 payload。
package transcript

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

var (
	ErrClosed  = errors.New("transcript: writer closed")
	ErrCorrupt = errors.New("transcript: corrupt record")
)

// maxPayload 限制单条记录大小，防止损坏的长度字段触发巨量分配
const maxPayload = 16 << 20

var decoderPool = sync.Pool{New: func() any {
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	return dec
}}

// Entry 为一条回放记录
type Entry struct {
	Fd      int
	Time    time.Time
	Payload []byte
}

// Writer 追加记录，可并发使用。
type Writer struct {
	mu     sync.Mutex
	enc    *zstd.Encoder
	dst    io.Closer // Create 打开的文件；NewWriter 时为 nil
	hdr    [3 * binary.MaxVarintLen64]byte
	now    func() time.Time
	closed bool
}

// Create 创建（截断）path 并返回写入它的 Writer。
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("transcript: %w", err)
	}
	w, err := NewWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.dst = f
	return w, nil
}

// NewWriter 写入 dst；Close 不会关闭 dst。
func NewWriter(dst io.Writer) (*Writer, error) {
	enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("transcript: %w", err)
	}
	return &Writer{enc: enc, now: time.Now}, nil
}

// Record 追加一条记录；p 会被立即编码，调用返回后可复用。
func (w *Writer) Record(fd int, p []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	n := binary.PutUvarint(w.hdr[:], uint64(fd))
	n += binary.PutUvarint(w.hdr[n:], uint64(w.now().UnixNano()))
	n += binary.PutUvarint(w.hdr[n:], uint64(len(p)))
	if _, err := w.enc.Write(w.hdr[:n]); err != nil {
		return err
	}
	_, err := w.enc.Write(p)
	return err
}

// Flush 把已缓冲的记录压缩成完整块写出。
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	return w.enc.Flush()
}

// Close 结束压缩流；由 Create 打开的文件一并关闭。重复调用返回 nil。
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.enc.Close()
	if w.dst != nil {
		if cerr := w.dst.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// ReadAll 解码 r 中的全部记录。
func ReadAll(r io.Reader) ([]Entry, error) {
	dec := decoderPool.Get().(*zstd.Decoder)
	defer func() {
		dec.Reset(nil)
		decoderPool.Put(dec)
	}()
	if err := dec.Reset(r); err != nil {
		return nil, fmt.Errorf("transcript: %w", err)
	}

	br := bufio.NewReader(dec)
	var out []Entry
	for {
		fd, err := binary.ReadUvarint(br)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("%w: fd: %w", ErrCorrupt, err)
		}
		ts, err := binary.ReadUvarint(br)
		if err != nil {
			return out, fmt.Errorf("%w: timestamp: %w", ErrCorrupt, err)
		}
		size, err := binary.ReadUvarint(br)
		if err != nil {
			return out, fmt.Errorf("%w: length: %w", ErrCorrupt, err)
		}
		if size > maxPayload {
			return out, fmt.Errorf("%w: payload of %d bytes", ErrCorrupt, size)
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(br, payload); err != nil {
			return out, fmt.Errorf("%w: payload: %w", ErrCorrupt, err)
		}
		out = append(out, Entry{Fd: int(fd), Time: time.Unix(0, int64(ts)), Payload: payload})
	}
}

// ReadFile 打开 path 并解码全部记录。
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transcript: %w", err)
	}
	defer f.Close()
	return ReadAll(f)
}
