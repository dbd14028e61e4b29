package manager

import (
	"io"
	"time"
)

///////////////////////////////////////////////////////////////////////////////
// CONSTANTS

// progressChunk is the number of bytes read between progress checks.
const progressChunk int64 = 64 * 1024 // 64 KiB

///////////////////////////////////////////////////////////////////////////////
// TYPES

// progress is a point-in-time reading of a progressReader
type progress struct {
	written int64
	total   int64
	percent float64
	speed   float64 // bytes per second since the previous emission
}

// progressReader wraps an io.Reader and calls emit at most once per interval,
// and only after progressChunk bytes since the last emission. It does not
// emit on EOF; the caller publishes the end of the stage itself.
type progressReader struct {
	r        io.Reader
	written  int64
	emitted  int64
	total    int64 // declared size, 0 if unknown
	interval time.Duration
	now      func() time.Time
	last     time.Time
	emit     func(progress)
}

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func newProgressReader(r io.Reader, total int64, interval time.Duration, now func() time.Time, emit func(progress)) *progressReader {
	return &progressReader{r: r, total: total, interval: interval, now: now, last: now(), emit: emit}
}

///////////////////////////////////////////////////////////////////////////////
// io.Reader

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.written += int64(n)
		if p.written-p.emitted >= progressChunk {
			if now := p.now(); now.Sub(p.last) >= p.interval {
				p.emit(p.progress(now))
				p.emitted, p.last = p.written, now
			}
		}
	}
	return n, err
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (p *progressReader) progress(now time.Time) progress {
	result := progress{written: p.written, total: p.total}
	if p.total > 0 {
		// Never report 100 before the stage has finished
		result.percent = min(float64(p.written)*100/float64(p.total), 99)
	}
	if elapsed := now.Sub(p.last).Seconds(); elapsed > 0 {
		result.speed = float64(p.written-p.emitted) / elapsed
	}
	return result
}
