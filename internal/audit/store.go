package audit

import (
	"bufio"
	"os"
	"strings"
	"time"
)

// Filter narrows a Query/Count call. Zero-value fields mean "don't filter
// on this dimension" (spec.md §4.A, including the resolved open question
// on RequestID: empty filter value matches everything, not just entries
// whose request_id is itself empty — see DESIGN.md).
type Filter struct {
	Type           Type
	HasType        bool
	UserID         string
	IPAddress      string
	ActionContains string
	RequestID      string
	Since          time.Time
	Until          time.Time
	DetailsText    string
	Reverse        bool
}

func (f Filter) matches(e Entry) bool {
	if f.HasType && e.Type != f.Type {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.IPAddress != "" && e.IPAddress != f.IPAddress {
		return false
	}
	if f.ActionContains != "" && !strings.Contains(e.Action, f.ActionContains) {
		return false
	}
	if f.RequestID != "" && e.RequestID != f.RequestID {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	if f.DetailsText != "" {
		found := false
		for _, k := range e.Details.Keys() {
			v, _ := e.Details.Get(k)
			if strings.Contains(k, f.DetailsText) || strings.Contains(v, f.DetailsText) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Page is one result page from Query.
type Page struct {
	Entries    []Entry
	TotalCount int
	HasMore    bool
}

// Aggregate is the per-range count summary returned by GetStats.
type Aggregate struct {
	Total       int
	ByType      map[Type]int
	TotalErrors int
}

// Store is the read side of the audit log: it streams the same on-disk
// segments the Pipeline writes, never touching the active segment handle
// the writer owns (spec.md §3.2 ownership boundary).
type Store struct {
	logDir string
}

// NewStore returns a Store reading segments under logDir.
func NewStore(logDir string) *Store {
	return &Store{logDir: logDir}
}

// ListLogFiles returns segment paths oldest-to-newest.
func (s *Store) ListLogFiles() ([]string, error) {
	segs, err := listSegments(s.logDir)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(segs))
	for i, seg := range segs {
		out[i] = seg.Path
	}
	return out, nil
}

// Query streams segments applying filter, offset and limit, per spec.md §4.A.
// A segment rotating mid-query is safe: Query only reads segments present
// on disk at the moment each is opened, and never re-reads one already
// enumerated, so no double count is possible across a concurrent rotation.
func (s *Store) Query(filter Filter, offset, limit int) (Page, error) {
	segs, err := listSegments(s.logDir)
	if err != nil {
		return Page{}, err
	}
	if filter.Reverse {
		reverseSegments(segs)
	}

	var matched []Entry
	total := 0
	err = s.scan(segs, func(e Entry) bool {
		if !filter.matches(e) {
			return true
		}
		total++
		if total > offset && (limit <= 0 || len(matched) < limit) {
			matched = append(matched, e)
		}
		return true
	})
	if err != nil {
		return Page{}, err
	}

	hasMore := limit > 0 && total > offset+limit
	return Page{Entries: matched, TotalCount: total, HasMore: hasMore}, nil
}

// GetByRequestID short-circuits Query, returning the first match.
func (s *Store) GetByRequestID(requestID string) (*Entry, error) {
	segs, err := listSegments(s.logDir)
	if err != nil {
		return nil, err
	}

	var found *Entry
	err = s.scan(segs, func(e Entry) bool {
		if e.RequestID == requestID {
			cp := e
			found = &cp
			return false // stop scanning
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Count returns the total matching filter without materializing entries.
func (s *Store) Count(filter Filter) (int, error) {
	segs, err := listSegments(s.logDir)
	if err != nil {
		return 0, err
	}
	count := 0
	err = s.scan(segs, func(e Entry) bool {
		if filter.matches(e) {
			count++
		}
		return true
	})
	return count, err
}

// GetStats aggregates counts of entries whose timestamp falls in [since, until].
func (s *Store) GetStats(since, until time.Time) (Aggregate, error) {
	segs, err := listSegments(s.logDir)
	if err != nil {
		return Aggregate{}, err
	}
	agg := Aggregate{ByType: make(map[Type]int)}
	err = s.scan(segs, func(e Entry) bool {
		if !since.IsZero() && e.Timestamp.Before(since) {
			return true
		}
		if !until.IsZero() && e.Timestamp.After(until) {
			return true
		}
		agg.Total++
		agg.ByType[e.Type]++
		if e.Type == TypeError {
			agg.TotalErrors++
		}
		return true
	})
	return agg, err
}

// scan streams each segment's complete records, oldest-to-newest as listed,
// calling visit for each parsed entry. visit returning false stops the scan.
func (s *Store) scan(segs []segmentInfo, visit func(Entry) bool) error {
	for _, info := range segs {
		cont, err := s.scanOne(info, visit)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

func (s *Store) scanOne(info segmentInfo, visit func(Entry) bool) (bool, error) {
	f, err := os.Open(info.Path)
	if err != nil {
		if os.IsNotExist(err) {
			// Retention (or a racing rotation+delete in tests) removed it
			// between listing and opening; treat as empty, not an error.
			return true, nil
		}
		return true, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		entry, err := ParseNDJSONLine(line)
		if err != nil {
			// A truncated trailing line is not surfaced as an error
			// (spec.md §6); anything else is skipped defensively since the
			// read path must stay tolerant of partial writes.
			continue
		}
		if !visit(entry) {
			return false, nil
		}
	}
	return true, scanner.Err()
}

func reverseSegments(s []segmentInfo) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
