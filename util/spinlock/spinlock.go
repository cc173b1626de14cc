package spinlock

import (
	"runtime"

	"github.com/pingcap/errors"
	"go.uber.org/atomic"
)

// The lock state is kept in a single word:
//   bit 31: a writer holds the lock
//   bit 30: a writer is pending (or active)
//   bits 0-29: number of readers
const (
	writerActiveFlag  uint32 = 1 << 31
	writerPendingFlag uint32 = 1 << 30
	readerMask        uint32 = writerPendingFlag - 1
	writerFlags              = writerActiveFlag | writerPendingFlag
)

// DefaultSpinsBeforeYield is the number of busy iterations between two runtime.Gosched calls.
const DefaultSpinsBeforeYield = 64

var (
	// ErrAlreadyPromoted is returned when promoting a reader guard that already holds the writer.
	ErrAlreadyPromoted = errors.New("reader lock has already been promoted")
	// ErrGuardReleased is returned when promoting a released reader guard.
	ErrGuardReleased = errors.New("reader lock has already been released")
	// ErrPromotionConflict is returned when another reader is already being promoted.
	// Two promoting readers would wait on each other forever, so the second one fails.
	ErrPromotionConflict = errors.New("another reader lock is being promoted")
)

// RWLock is a reader writer lock that only busy-waits on atomics.
// Writers are obtained by promoting a reader; once a writer is pending new readers
// wait until the writer has been released, while the readers that were already
// inside drain normally.
//
// The zero value is an unlocked lock.
type RWLock struct {
	state            atomic.Uint32
	spinsBeforeYield int
}

// NewRWLock creates a lock that yields the processor every spinsBeforeYield busy iterations.
func NewRWLock(spinsBeforeYield int) *RWLock {
	return &RWLock{spinsBeforeYield: spinsBeforeYield}
}

type spinner struct {
	count int
	limit int
}

func (s *spinner) spin() {
	s.count++
	if s.count >= s.limit {
		s.count = 0
		runtime.Gosched()
	}
}

func (l *RWLock) newSpinner() spinner {
	limit := l.spinsBeforeYield
	if limit <= 0 {
		limit = DefaultSpinsBeforeYield
	}
	return spinner{limit: limit}
}

// AcquireReader blocks until no writer is pending or active and registers a reader.
func (l *RWLock) AcquireReader() *ReaderGuard {
	s := l.newSpinner()
	for {
		current := l.state.Load()
		if current&writerFlags == 0 {
			if current&readerMask == readerMask {
				panic("spinlock: too many readers")
			}
			if l.state.CAS(current, current+1) {
				return &ReaderGuard{lock: l}
			}
			continue
		}
		s.spin()
	}
}

// IsWriterPending returns true when a writer is waiting for readers or holds the lock.
func (l *RWLock) IsWriterPending() bool {
	return l.state.Load()&writerPendingFlag != 0
}

// IsWriterActive returns true when a writer holds the lock.
func (l *RWLock) IsWriterActive() bool {
	return l.state.Load()&writerActiveFlag != 0
}

// IsReaderActive returns true when at least one reader holds the lock.
// A reader promoted to writer is not counted.
func (l *RWLock) IsReaderActive() bool {
	return l.state.Load()&readerMask != 0
}

func (l *RWLock) promote() error {
	s := l.newSpinner()
	for {
		current := l.state.Load()
		if current&writerPendingFlag != 0 {
			return ErrPromotionConflict
		}
		if l.state.CAS(current, current|writerPendingFlag) {
			break
		}
	}

	// Wait until the promoting reader is the only one left.
	for !l.state.CAS(writerPendingFlag|1, writerFlags) {
		s.spin()
	}
	return nil
}

func (l *RWLock) demote() {
	// No reader can enter while the writer flags are set, so the promoting
	// reader is restored as the only reader.
	l.state.Store(1)
}

func (l *RWLock) releaseReader() {
	l.state.Dec()
}

// ReaderGuard is a held reader lock. It must be released exactly once, typically with defer;
// extra Release calls are ignored.
type ReaderGuard struct {
	lock     *RWLock
	writer   *WriterGuard
	released bool
}

// PromoteToWriter waits for all other readers to leave and turns the guard into a writer.
// Releasing the returned WriterGuard demotes the lock back to this reader.
func (g *ReaderGuard) PromoteToWriter() (*WriterGuard, error) {
	if g.released {
		return nil, ErrGuardReleased
	}
	if g.writer != nil {
		return nil, ErrAlreadyPromoted
	}
	if err := g.lock.promote(); err != nil {
		return nil, err
	}
	g.writer = &WriterGuard{reader: g}
	return g.writer, nil
}

// Release releases the reader, releasing the writer first if it is still held.
func (g *ReaderGuard) Release() {
	if g.released {
		return
	}
	if g.writer != nil {
		g.writer.Release()
	}
	g.released = true
	g.lock.releaseReader()
}

// WriterGuard is a held writer lock layered on a ReaderGuard.
type WriterGuard struct {
	reader   *ReaderGuard
	released bool
}

// Release demotes the lock back to the reader it was promoted from.
func (w *WriterGuard) Release() {
	if w.released {
		return
	}
	w.released = true
	w.reader.writer = nil
	w.reader.lock.demote()
}
