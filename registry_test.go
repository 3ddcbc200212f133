package tcpcore

import (
	"errors"
	"sort"
	"testing"
)

// each 遍历当前 fd，顺序不保证
func (r *clientRegistry) each(fn func(fd int)) {
	for _, fd := range r.fds {
		fn(fd)
	}
}

func registryFDs(r *clientRegistry) []int {
	var out []int
	r.each(func(fd int) { out = append(out, fd) })
	sort.Ints(out)
	return out
}

func TestRegistryAddRemove(t *testing.T) {
	r := newClientRegistry(0, 0)
	for _, fd := range []int{7, 8, 9, 10} {
		if err := r.add(fd); err != nil {
			t.Fatalf("add(%d): %v", fd, err)
		}
	}
	if !r.remove(8) {
		t.Fatalf("remove(8) reported absent")
	}
	got := registryFDs(r)
	want := []int{7, 9, 10}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	// 交换删除后索引仍需正确
	for _, fd := range want {
		if !r.contains(fd) {
			t.Fatalf("lost fd %d after swap removal", fd)
		}
	}
}

func TestRegistryRemoveAbsentIsNoop(t *testing.T) {
	r := newClientRegistry(4, 0)
	r.add(3)
	if r.remove(42) {
		t.Fatalf("removing an absent fd must be a no-op")
	}
	if !r.remove(3) || r.remove(3) {
		t.Fatalf("double removal must remove exactly once")
	}
	if r.len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.len())
	}
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	r := newClientRegistry(4, 0)
	if err := r.add(7); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.add(7); !errors.Is(err, errDuplicateFD) {
		t.Fatalf("expected errDuplicateFD, got %v", err)
	}
	if r.len() != 1 {
		t.Fatalf("duplicate must not be stored twice, len=%d", r.len())
	}
}

func TestRegistryGrowsByDoubling(t *testing.T) {
	r := newClientRegistry(2, 0)
	caps := []int{}
	for fd := 0; fd < 9; fd++ {
		if err := r.add(fd); err != nil {
			t.Fatalf("add: %v", err)
		}
		caps = append(caps, cap(r.fds))
	}
	want := []int{2, 2, 4, 4, 8, 8, 8, 8, 16}
	for i := range want {
		if caps[i] != want[i] {
			t.Fatalf("capacity sequence %v, want %v", caps, want)
		}
	}
}

func TestRegistryFull(t *testing.T) {
	r := newClientRegistry(1, 3)
	for fd := 0; fd < 3; fd++ {
		if err := r.add(fd); err != nil {
			t.Fatalf("add(%d): %v", fd, err)
		}
	}
	if err := r.add(99); !errors.Is(err, ErrRegistryFull) {
		t.Fatalf("expected ErrRegistryFull, got %v", err)
	}
	if r.contains(99) || r.len() != 3 {
		t.Fatalf("rejected fd must not be stored")
	}
	r.remove(1)
	if err := r.add(99); err != nil {
		t.Fatalf("add after remove: %v", err)
	}
}

func TestRegistryCloseAll(t *testing.T) {
	r := newClientRegistry(0, 0)
	r.add(5)
	r.add(6)
	var closed []int
	n := r.closeAll(func(fd int) { closed = append(closed, fd) })
	if n != 2 || len(closed) != 2 {
		t.Fatalf("closeAll closed %v (n=%d)", closed, n)
	}
	if r.len() != 0 || r.fds != nil {
		t.Fatalf("storage not released")
	}
}
