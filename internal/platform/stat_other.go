//go:build !linux && !darwin && !freebsd

package platform

import (
	"os"
	"time"
)

func accessTime(info os.FileInfo) time.Time {
	return info.ModTime()
}
