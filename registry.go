package tcpcore

import "errors"

// 出现即说明 registry 与就绪通知失去同步
var errDuplicateFD = errors.New("tcpcore: fd already in client registry")

// clientRegistry 保存当前在线的客户端 fd，只由分发 goroutine 访问。
// 稠密数组 + fd 索引表：删除时用末尾元素填洞，不保持插入顺序。
type clientRegistry struct {
	index map[int]int // fd -> fds 中的下标
	fds   []int
	max   int // 0 表示不限
}

func newClientRegistry(initial, max int) *clientRegistry {
	if max > 0 && initial > max {
		initial = max
	}
	return &clientRegistry{
		index: make(map[int]int, initial),
		fds:   make([]int, 0, initial),
		max:   max,
	}
}

// add 加入 fd；达到上限时返回 ErrRegistryFull，fd 已存在时返回 errDuplicateFD，调用方负责关闭 fd。
func (r *clientRegistry) add(fd int) error {
	if _, ok := r.index[fd]; ok {
		return errDuplicateFD
	}
	if len(r.fds) == cap(r.fds) {
		if r.max > 0 && len(r.fds) >= r.max {
			return ErrRegistryFull
		}
		r.grow()
	}
	r.index[fd] = len(r.fds)
	r.fds = append(r.fds, fd)
	return nil
}

// grow 容量翻倍，不超过上限
func (r *clientRegistry) grow() {
	n := cap(r.fds) * 2
	if n == 0 {
		n = 1
	}
	if r.max > 0 && n > r.max {
		n = r.max
	}
	fds := make([]int, len(r.fds), n)
	copy(fds, r.fds)
	r.fds = fds
}

// remove 最多移除一个匹配项；fd 不存在时为空操作。
func (r *clientRegistry) remove(fd int) bool {
	idx, ok := r.index[fd]
	if !ok {
		return false
	}
	last := len(r.fds) - 1
	r.fds[idx] = r.fds[last]
	r.fds = r.fds[:last]
	if idx < len(r.fds) {
		r.index[r.fds[idx]] = idx
	}
	delete(r.index, fd)
	return true
}

func (r *clientRegistry) contains(fd int) bool {
	_, ok := r.index[fd]
	return ok
}

func (r *clientRegistry) len() int { return len(r.fds) }

// closeAll 关闭全部 fd 并释放存储，只在分发循环退出时调用一次。
func (r *clientRegistry) closeAll(closeFn func(fd int)) int {
	n := len(r.fds)
	for _, fd := range r.fds {
		closeFn(fd)
	}
	r.fds = nil
	r.index = nil
	return n
}
