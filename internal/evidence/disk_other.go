//go:build !linux && !darwin && !freebsd

package evidence

import "errors"

func diskUsage(string) (int64, int64, error) {
	return 0, 0, errors.New("disk usage not supported on this platform")
}
