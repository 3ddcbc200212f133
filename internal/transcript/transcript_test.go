package transcript

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestRecordAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.zst")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	fixed := time.Unix(1700000000, 42)
	w.now = func() time.Time { return fixed }

	records := []struct {
		fd      int
		payload string
	}{
		{5, "hello\n"},
		{6, ""},
		{5, "quit\n"},
	}
	for _, r := range records {
		if err := w.Record(r.fd, []byte(r.payload)); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := w.Record(1, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("record after close: %v", err)
	}

	entries, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != len(records) {
		t.Fatalf("got %d entries, want %d", len(entries), len(records))
	}
	for i, r := range records {
		e := entries[i]
		if e.Fd != r.fd || string(e.Payload) != r.payload || !e.Time.Equal(fixed) {
			t.Fatalf("entry %d = %+v", i, e)
		}
	}
}

func TestConcurrentRecords(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(fd int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				w.Record(fd, []byte(fmt.Sprintf("%d:%d", fd, i)))
			}
		}(g)
	}
	wg.Wait()
	w.Close()

	entries, err := ReadAll(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 400 {
		t.Fatalf("got %d entries", len(entries))
	}
	next := map[int]int{}
	for _, e := range entries {
		want := fmt.Sprintf("%d:%d", e.Fd, next[e.Fd])
		if string(e.Payload) != want {
			t.Fatalf("payload %q, want %q", e.Payload, want)
		}
		next[e.Fd]++
	}
}

func TestReadTruncated(t *testing.T) {
	var buf bytes.Buffer
	w, _ := NewWriter(&buf)
	w.Record(3, []byte("abcdef"))
	w.Close()

	// 重新压缩一份被截断的明文
	var plain bytes.Buffer
	w2, _ := NewWriter(&plain)
	w2.enc.Write([]byte{3, 1, 10, 'a', 'b'})
	w2.Close()

	if _, err := ReadAll(&plain); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	if entries, err := ReadAll(&buf); err != nil || len(entries) != 1 {
		t.Fatalf("decoder reuse broken: %v %v", entries, err)
	}
}
