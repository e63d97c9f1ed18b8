//go:build unix

package walker

import (
	"os"
	"syscall"

	"github.com/ivoronin/duphound/internal/types"
)

// newFileRecord builds a FileRecord from os.FileInfo, extracting device and
// inode from the platform-specific Sys() value.
func newFileRecord(path string, info os.FileInfo) *types.FileRecord {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return &types.FileRecord{
			Path:    path,
			Size:    info.Size(),
			ModTime: types.TruncateModTime(info.ModTime()),
		}
	}
	return &types.FileRecord{
		Path:    path,
		Size:    info.Size(),
		ModTime: types.TruncateModTime(info.ModTime()),
		Dev:     uint64(stat.Dev), //nolint:unconvert // platform-dependent type
		Ino:     stat.Ino,
		Nlink:   uint32(stat.Nlink),
	}
}

// statDevIno stats path and returns its (device, inode) pair, used for
// symlink-loop detection during followed-symlink descent.
func statDevIno(path string) (dev, ino uint64, err error) {
	var st syscall.Stat_t
	if err := syscall.Stat(path, &st); err != nil {
		return 0, 0, err
	}
	return uint64(st.Dev), st.Ino, nil //nolint:unconvert // platform-dependent type
}
