//go:build !linux && !darwin

package scheduler

import "errors"

func diskUsage(string) (int64, int64, error) {
	return 0, 0, errors.New("disk usage is not supported on this platform")
}
