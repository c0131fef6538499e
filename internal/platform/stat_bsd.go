//go:build darwin || freebsd

package platform

import (
	"os"
	"syscall"
	"time"
)

func accessTime(info os.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(int64(st.Atimespec.Sec), int64(st.Atimespec.Nsec)) //nolint:unconvert // field types vary by arch
	}
	return info.ModTime()
}
