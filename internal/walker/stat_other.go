//go:build !unix

package walker

import (
	"os"

	"github.com/ivoronin/duphound/internal/types"
)

// newFileRecord builds a FileRecord without device/inode identity on
// platforms where syscall.Stat_t isn't available (e.g. plain Windows builds
// without the unix build tag). Inode dedup degenerates to "every path is
// its own identity" on these platforms.
func newFileRecord(path string, info os.FileInfo) *types.FileRecord {
	return &types.FileRecord{
		Path:    path,
		Size:    info.Size(),
		ModTime: types.TruncateModTime(info.ModTime()),
	}
}

func statDevIno(path string) (dev, ino uint64, err error) {
	return 0, 0, nil
}
