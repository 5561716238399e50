//go:build windows

package listing

import (
	"os"
	"syscall"
	"time"
)

func creationTime(info os.FileInfo) *time.Time {
	attrs, ok := info.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return nil
	}
	t := time.Unix(0, attrs.CreationTime.Nanoseconds()).UTC()
	return &t
}
