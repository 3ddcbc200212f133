package netutil

import "os"

// OpenFDs 返回当前进程已打开的文件描述符数量（用于测试泄漏检查）。
func OpenFDs() (int, error) {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		return 0, err
	}
	// 扣除 ReadDir 自身打开目录占用的 fd
	return len(entries) - 1, nil
}
