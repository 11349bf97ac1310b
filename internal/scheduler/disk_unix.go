//go:build linux || darwin

package scheduler

import (
	"fmt"
	"syscall"
)

// diskUsage возвращает ёмкость файловой системы, на которой лежит path (в байтах).
func diskUsage(path string) (total, used int64, err error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	total = int64(st.Blocks) * int64(st.Bsize)
	available := int64(st.Bavail) * int64(st.Bsize)
	return total, total - available, nil
}
