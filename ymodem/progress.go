package ymodem

import (
	"sync"
	"time"
)

// ProgressTracker reports progress during a transfer, invoking its
// callback at most once per updateInterval. Unlike a windowed protocol
// there is no frame-level granularity to report against, so byte counts
// drive the callback; retried packets (NAKs, CRC failures, timeouts) are
// tallied separately since they are the one YMODEM-specific signal a
// byte counter alone can't surface — a transfer that is "50% done" after
// twenty retries on a noisy link looks identical to a clean one if all
// that's reported is bytes.
type ProgressTracker struct {
	mu sync.Mutex

	filename         string
	bytesTransferred int64
	bytesTotal       int64
	retries          int
	startTime        time.Time
	lastUpdate       time.Time

	callback       func(filename string, transferred, total int64, rate float64)
	updateInterval time.Duration
}

// NewProgressTracker creates a tracker that calls callback at most every
// interval (100ms if interval <= 0).
func NewProgressTracker(callback func(filename string, transferred, total int64, rate float64), interval time.Duration) *ProgressTracker {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &ProgressTracker{
		callback:       callback,
		updateInterval: interval,
	}
}

// Start begins tracking a new file transfer.
func (pt *ProgressTracker) Start(filename string, bytesTotal int64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.filename = filename
	pt.bytesTotal = bytesTotal
	pt.bytesTransferred = 0
	pt.retries = 0
	pt.startTime = time.Now()
	pt.lastUpdate = pt.startTime
}

// Update records bytesTransferred and invokes the callback if enough
// time has passed since the last invocation. The reported rate is the
// cumulative average since Start, not a windowed instantaneous rate: a
// stop-and-wait protocol's per-packet timing is dominated by round-trip
// latency and retry stalls, so a short window swings wildly around
// individual ACK delays where the running average settles quickly.
func (pt *ProgressTracker) Update(bytesTransferred int64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.bytesTransferred = bytesTransferred

	now := time.Now()
	if now.Sub(pt.lastUpdate) < pt.updateInterval {
		return
	}
	pt.lastUpdate = now

	pt.emit(now)
}

// Retry records one retried packet (a NAK, a CRC failure, or a timeout
// absorbed by the error budget) against the current transfer.
func (pt *ProgressTracker) Retry() {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.retries++
}

// Complete marks the transfer finished, issues a final callback, and
// returns the total duration.
func (pt *ProgressTracker) Complete() time.Duration {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	now := time.Now()
	pt.emit(now)
	return now.Sub(pt.startTime)
}

// emit invokes the callback with the cumulative average rate as of now.
// Callers must hold pt.mu.
func (pt *ProgressTracker) emit(now time.Time) {
	if pt.callback == nil {
		return
	}
	var rate float64
	if elapsed := now.Sub(pt.startTime).Seconds(); elapsed > 0 {
		rate = float64(pt.bytesTransferred) / elapsed
	}
	pt.callback(pt.filename, pt.bytesTransferred, pt.bytesTotal, rate)
}

// GetStats returns the current progress snapshot, including the number
// of retried packets seen so far.
func (pt *ProgressTracker) GetStats() (filename string, transferred, total int64, rate float64, retries int, duration time.Duration) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	filename = pt.filename
	transferred = pt.bytesTransferred
	total = pt.bytesTotal
	retries = pt.retries
	duration = time.Since(pt.startTime)
	if duration.Seconds() > 0 {
		rate = float64(transferred) / duration.Seconds()
	}
	return
}
