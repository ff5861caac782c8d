package export

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrPipelineClosed is returned when Process is called after shutdown.
var ErrPipelineClosed = errors.New("export: pipeline closed")

const (
	defaultBatchSize = 64
	defaultBuffer    = 512
)

// Pipeline drops invalid and duplicate rows and writes the rest in batches
// from a pool of workers.
type Pipeline struct {
	writer    Writer
	rowCh     chan Row
	batchSize int

	wg sync.WaitGroup

	seen   map[string]struct{}
	seenMu sync.Mutex

	stats stats

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline flushing every batchSize rows. Zero uses
// the default of 64.
func NewPipeline(writer Writer, batchSize int) *Pipeline {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Pipeline{
		writer:    writer,
		rowCh:     make(chan Row, defaultBuffer),
		batchSize: batchSize,
		seen:      make(map[string]struct{}),
		stats:     newStats(),
		shutdown:  make(chan struct{}),
	}
}

// Start launches worker goroutines.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process enqueues rows for writing.
func (p *Pipeline) Process(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	for _, row := range rows {
		if err := p.enqueue(row); err != nil {
			return err
		}
	}
	return nil
}

// Close waits for workers to drain the queue and rejects further rows.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.closeOnce.Do(func() {
		close(p.rowCh)
	})
	p.wg.Wait()
	p.signalShutdown()
	return p.Err()
}

// Err returns the first error encountered during writing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Written  int64
	Rejected map[string]int
}

// Stats returns a snapshot of the internal counters.
func (p *Pipeline) Stats() Stats {
	return p.stats.snapshot()
}

// StartProgressReporting logs progress every interval until Close.
func (p *Pipeline) StartProgressReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s := p.Stats()
				slog.Info("export progress",
					slog.Int64("written", s.Written),
					slog.Any("rejected", s.Rejected),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]Row, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return err
		}
		p.stats.addWritten(len(batch))
		batch = batch[:0]
		return nil
	}

	for row := range p.rowCh {
		if !p.accept(row) {
			continue
		}
		batch = append(batch, row)
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				p.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		p.setErr(fmt.Errorf("write batch: %w", err))
	}
}

func (p *Pipeline) accept(row Row) bool {
	if row.ChartID == "" || row.Position <= 0 || row.Name == "" {
		p.stats.reject("invalid_row")
		return false
	}

	p.seenMu.Lock()
	defer p.seenMu.Unlock()
	key := row.key()
	if _, ok := p.seen[key]; ok {
		p.stats.reject("duplicate_row")
		return false
	}
	p.seen[key] = struct{}{}
	return true
}

func (p *Pipeline) enqueue(row Row) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case p.rowCh <- row:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	go func() {
		// drain so blocked producers and sibling workers can finish
		for range p.rowCh {
		}
	}()
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type stats struct {
	mu       sync.Mutex
	written  int64
	rejected map[string]int
}

func newStats() stats {
	return stats{rejected: make(map[string]int)}
}

func (s *stats) addWritten(n int) {
	s.mu.Lock()
	s.written += int64(n)
	s.mu.Unlock()
}

func (s *stats) reject(reason string) {
	s.mu.Lock()
	s.rejected[reason]++
	s.mu.Unlock()
}

func (s *stats) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	rejected := make(map[string]int, len(s.rejected))
	for k, v := range s.rejected {
		rejected[k] = v
	}
	return Stats{Written: s.written, Rejected: rejected}
}
