//go:build !linux && !darwin && !freebsd

package space

import "errors"

func statfs(string) (Usage, error) {
	return Usage{}, errors.New("statfs not supported on this platform")
}
