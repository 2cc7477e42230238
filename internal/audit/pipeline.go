package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"veloz/internal/logging"
)

// Stats is an atomic snapshot of pipeline counters (spec.md §4.A).
type Stats struct {
	TotalLogged    uint64
	TotalFlushed   uint64
	TotalRotations uint64
	TotalErrors    uint64
	PendingCount   int64
}

// flushRequest is pushed onto the queue alongside ordinary entries so the
// writer goroutine can signal completion after it has drained everything
// enqueued ahead of it.
type flushRequest struct {
	done chan struct{}
}

type queueItem struct {
	line  []byte
	flush *flushRequest
}

// Pipeline is the non-blocking, rotating audit log ingest path. Producers
// call Log/LogAction; a single writer goroutine owns the active segment.
type Pipeline struct {
	cfg Config
	log *logging.Logger

	queue chan queueItem

	totalLogged    atomic.Uint64
	totalFlushed   atomic.Uint64
	totalRotations atomic.Uint64
	totalErrors    atomic.Uint64
	pending        atomic.Int64

	writerDone chan struct{}
	closeOnce  sync.Once
	stopCh     chan struct{}

	segMu             sync.Mutex // guards curSeq/lastDay/activeSegmentPath
	curSeq            int
	lastDay           string
	activeSegmentPath string
}

// New constructs a Pipeline and starts its writer goroutine. cfg.LogDir must
// be creatable; failures to open the first segment are absorbed into the
// error-counted degraded mode described in spec.md §4.A "Failure model".
func New(cfg Config, log *logging.Logger) *Pipeline {
	if log == nil {
		log = logging.New("audit", false)
	}
	p := &Pipeline{
		cfg:        cfg,
		log:        log,
		queue:      make(chan queueItem, cfg.QueueCapacity),
		writerDone: make(chan struct{}),
		stopCh:     make(chan struct{}),
	}
	go p.run()
	return p
}

// Log enqueues entry and returns a handle that is already closed: acceptance
// into the queue is synchronous with the call (spec.md §9 "do not conflate
// accepted with persisted").
func (p *Pipeline) Log(_ context.Context, entry Entry) <-chan struct{} {
	ready := make(chan struct{})
	close(ready)

	line := entry.MarshalNDJSON()
	select {
	case p.queue <- queueItem{line: line}:
		p.totalLogged.Add(1)
		p.pending.Add(1)
	default:
		// Queue full: drop-newest-with-error (spec.md §4.A, resolved open
		// question in DESIGN.md — not drop-oldest).
		p.totalErrors.Add(1)
	}
	return ready
}

// LogAction is the convenience constructor form of Log.
func (p *Pipeline) LogAction(ctx context.Context, typ Type, action, userID, ip, requestID string) <-chan struct{} {
	return p.Log(ctx, Entry{
		Timestamp: time.Now(),
		Type:      typ,
		Action:    action,
		UserID:    userID,
		IPAddress: ip,
		RequestID: requestID,
	})
}

// Flush resolves once every entry enqueued before this call has been
// written and fsync'd, or returns an error if the writer has already exited.
func (p *Pipeline) Flush(ctx context.Context) error {
	req := &flushRequest{done: make(chan struct{})}
	select {
	case p.queue <- queueItem{flush: req}:
	case <-p.writerDone:
		return fmt.Errorf("audit: flush failed, writer has exited")
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-p.writerDone:
		return fmt.Errorf("audit: flush failed, writer exited mid-drain")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns an atomic snapshot of the pipeline's counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		TotalLogged:    p.totalLogged.Load(),
		TotalFlushed:   p.totalFlushed.Load(),
		TotalRotations: p.totalRotations.Load(),
		TotalErrors:    p.totalErrors.Load(),
		PendingCount:   p.pending.Load(),
	}
}

// Close stops the writer goroutine after draining anything already queued.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		close(p.stopCh)
	})
	<-p.writerDone
}

// run is the single dedicated writer goroutine. It owns the active segment
// exclusively; rotation happens inline here, never concurrently.
func (p *Pipeline) run() {
	defer close(p.writerDone)

	seg, err := p.openFreshSegment()
	if err != nil {
		p.log.Error("audit: failed to open initial segment", err)
		p.totalErrors.Add(1)
	} else {
		p.setActiveSegmentPath(seg.info.Path)
	}

	for {
		select {
		case item := <-p.queue:
			p.handleItem(&seg, item)
		case <-p.stopCh:
			p.drainRemaining(&seg)
			if seg != nil {
				seg.syncAndClose()
			}
			return
		}
	}
}

func (p *Pipeline) drainRemaining(seg **segment) {
	for {
		select {
		case item := <-p.queue:
			p.handleItem(seg, item)
		default:
			return
		}
	}
}

func (p *Pipeline) handleItem(seg **segment, item queueItem) {
	if item.flush != nil {
		if *seg != nil {
			if err := (*seg).file.Sync(); err != nil {
				p.log.Error("audit: fsync on flush failed", err)
				p.totalErrors.Add(1)
			} else {
				p.totalFlushed.Add(1)
			}
		}
		close(item.flush.done)
		return
	}

	p.pending.Add(-1)

	if *seg == nil {
		fresh, err := p.openFreshSegment()
		if err != nil {
			p.log.Error("audit: cannot open segment for write", err)
			p.totalErrors.Add(1)
			return
		}
		*seg = fresh
		p.setActiveSegmentPath(fresh.info.Path)
	}

	if p.cfg.MaxFileSize > 0 && (*seg).size+int64(len(item.line)) > p.cfg.MaxFileSize {
		if err := (*seg).syncAndClose(); err != nil {
			p.log.Error("audit: rotation close failed", err)
			p.totalErrors.Add(1)
		}
		fresh, err := p.openFreshSegment()
		if err != nil {
			p.log.Error("audit: rotation open failed", err)
			p.totalErrors.Add(1)
			*seg = nil
			p.setActiveSegmentPath("")
			return
		}
		*seg = fresh
		p.setActiveSegmentPath(fresh.info.Path)
		p.totalRotations.Add(1)
	}

	if err := (*seg).write(item.line); err != nil {
		p.log.Error("audit: write failed", err)
		p.totalErrors.Add(1)
		return
	}

	if p.cfg.EnableConsoleOutput {
		p.log.Debug(string(item.line))
	}
}

// openFreshSegment opens the next segment in sequence, restarting the
// sequence counter on each new UTC day (matching the filename's embedded
// creation timestamp being the effective rotation key).
func (p *Pipeline) openFreshSegment() (*segment, error) {
	now := time.Now().UTC()
	day := now.Format("20060102")

	p.segMu.Lock()
	if day != p.lastDay {
		p.lastDay = day
		p.curSeq = p.nextSeqForDay(day)
	} else {
		p.curSeq++
	}
	seq := p.curSeq
	p.segMu.Unlock()

	return openSegment(p.cfg.LogDir, now, seq)
}

// nextSeqForDay scans existing segments for day so a restarted process
// picks up after the last sequence already on disk instead of overwriting it.
func (p *Pipeline) nextSeqForDay(day string) int {
	segs, err := listSegments(p.cfg.LogDir)
	if err != nil {
		return 0
	}
	max := -1
	for _, s := range segs {
		if s.CreatedAt.Format("20060102") == day && s.Seq > max {
			max = s.Seq
		}
	}
	return max + 1
}

func (p *Pipeline) setActiveSegmentPath(path string) {
	p.segMu.Lock()
	p.activeSegmentPath = path
	p.segMu.Unlock()
}

// ApplyRetentionPolicy runs the retention sweep synchronously, exempting
// whichever segment is currently open for writing. Safe to call from tests
// or from a RetentionScheduler's cron callback.
func (p *Pipeline) ApplyRetentionPolicy() (deleted int, err error) {
	p.segMu.Lock()
	active := p.activeSegmentPath
	p.segMu.Unlock()
	return ApplyRetentionPolicy(p.cfg.LogDir, p.cfg.RetentionDays, active, p.log)
}
