//go:build darwin

package listing

import (
	"os"
	"syscall"
	"time"
)

func creationTime(info os.FileInfo) *time.Time {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}
	t := time.Unix(st.Birthtimespec.Unix()).UTC()
	return &t
}
