package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

// segmentNamePattern matches audit_<YYYYMMDD_HHMMSS>_<seq>.ndjson.
var segmentNamePattern = regexp.MustCompile(`^audit_(\d{8}_\d{6})_(\d+)\.ndjson$`)

// segmentInfo describes a segment file discovered on disk, independent of
// whether it is currently open for writing.
type segmentInfo struct {
	Path      string
	CreatedAt time.Time
	Seq       int
	Size      int64
}

// segmentFileName builds the filename for a segment created at t with
// sequence seq, zero-padded per spec.md §6.
func segmentFileName(t time.Time, seq int) string {
	return fmt.Sprintf("audit_%s_%06d.ndjson", t.UTC().Format("20060102_150405"), seq)
}

// parseSegmentFileName extracts the creation time and sequence encoded in
// name, or ok=false if name does not match the pattern.
func parseSegmentFileName(name string) (createdAt time.Time, seq int, ok bool) {
	m := segmentNamePattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, 0, false
	}
	t, err := time.Parse("20060102_150405", m[1])
	if err != nil {
		return time.Time{}, 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, 0, false
	}
	return t.UTC(), n, true
}

// listSegments scans dir for segment files, sorted oldest-to-newest by
// (createdAt, seq).
func listSegments(dir string) ([]segmentInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []segmentInfo
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		createdAt, seq, ok := parseSegmentFileName(de.Name())
		if !ok {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, segmentInfo{
			Path:      filepath.Join(dir, de.Name()),
			CreatedAt: createdAt,
			Seq:       seq,
			Size:      info.Size(),
		})
	}

	sortSegments(out)
	return out, nil
}

func sortSegments(s []segmentInfo) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0; j-- {
			if segmentLess(s[j], s[j-1]) {
				s[j], s[j-1] = s[j-1], s[j]
			} else {
				break
			}
		}
	}
}

func segmentLess(a, b segmentInfo) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Seq < b.Seq
}

// segment wraps the single segment file the writer goroutine currently
// owns exclusively; nothing else touches this handle concurrently.
type segment struct {
	info segmentInfo
	file *os.File
	size int64
}

// openSegment creates a new segment file for writing. If a file of that
// name already exists (which the filename scheme should never produce) it
// is opened for append, not truncated.
func openSegment(dir string, t time.Time, seq int) (*segment, error) {
	name := segmentFileName(t, seq)
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &segment{
		info: segmentInfo{Path: path, CreatedAt: t.UTC(), Seq: seq},
		file: f,
	}, nil
}

func (s *segment) write(p []byte) error {
	n, err := s.file.Write(p)
	s.size += int64(n)
	return err
}

func (s *segment) syncAndClose() error {
	if err := s.file.Sync(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
