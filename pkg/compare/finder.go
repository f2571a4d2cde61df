package compare

import (
	"path/filepath"

	"golang.org/x/sys/unix"

	"dircmp/pkg/dirread"
	"dircmp/pkg/order"
)

// FindDirFile returns the path of the entry in dir that best matches file,
// joined onto dir's name. With case-insensitive matching off this is a plain
// join with no filesystem access. Otherwise the directory is scanned over
// the narrow window of names that fold-match file; an exact byte match wins,
// then the first candidate, then file verbatim (a failed read included).
func (s *Session) FindDirFile(dir *dirread.Dir, file string) string {
	match := file
	if s.cfg.IgnoreCase {
		t, err := dirread.Read(unix.AT_FDCWD, dir, dirread.Options{
			NoFollow:  s.cfg.NoFollow,
			Excluded:  s.cfg.Excluded,
			Compare:   s.cmp.Compare,
			Start:     file,
			StartOnly: true,
		})
		if err == nil {
			for _, name := range t.Names() {
				if order.Raw(name, file) == 0 {
					match = name
					break
				}
				if match == file {
					match = name
				}
			}
		}
	}
	return filepath.Join(dir.Name, match)
}
