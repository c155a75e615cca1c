//go:build unix

package probe

import (
	"os"
	"syscall"
)

// deviceID extracts the device ID from stat info on Unix systems, mirroring
// internal/scanner's getDeviceID. Used to detect mount boundaries (§4.2).
func deviceID(info os.FileInfo) uint64 {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0
	}
	//nolint:unconvert // stat.Dev type varies by platform (int32 on some, uint64 on others)
	return uint64(stat.Dev)
}
