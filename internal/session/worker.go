package session

import (
	"context"
	"time"

	"github.com/tphakala/vocalcoach/internal/analysis"
	"github.com/tphakala/vocalcoach/internal/capture"
	"github.com/tphakala/vocalcoach/internal/errors"
	"github.com/tphakala/vocalcoach/internal/feedback"
	"github.com/tphakala/vocalcoach/internal/framechan"
	"github.com/tphakala/vocalcoach/internal/logger"
	"github.com/tphakala/vocalcoach/internal/target"
)

// run is the analysis goroutine. It exits when the frame channel is closed
// and drained or ctx is cancelled.
func (s *Session) run(ctx context.Context, window *analysis.Window, comparator *target.Comparator,
	dispatcher *feedback.Dispatcher, rec *recording) {
	defer close(rec.done)

	rate := float64(s.config.Analysis.SampleRate)
	// Compare at the middle of the analysed window
	centre := float64(window.Len()) / 2

	// Samples of evicted frames, so elapsed follows the capture clock
	// rather than the analysed stream
	var nextSeq, skipped uint64
	first := true

	for {
		frame, err := rec.frames.Pop(ctx, s.config.PopTimeout)
		switch {
		case err == nil:
		case errors.Is(err, framechan.ErrTimeout):
			continue
		case errors.Is(err, framechan.ErrClosed):
			s.log.Debug("analysis drained")
			return
		default:
			s.log.Debug("analysis cancelled", logger.Error(err))
			return
		}

		if first {
			nextSeq, first = frame.Seq, false
		}
		if frame.Seq > nextSeq {
			skipped += (frame.Seq - nextSeq) * uint64(len(frame.Samples))
		}
		nextSeq = frame.Seq + 1

		started := time.Now()
		results := window.Add(frame.Samples)
		capture.ReleaseFrame(frame)

		for _, r := range results {
			pos := float64(r.EndSample+skipped) - centre
			elapsed := time.Duration(max(pos, 0) / rate * float64(time.Second))
			cmp := comparator.Compare(r.Pitch, elapsed)

			s.statsMu.Lock()
			s.cycles++
			s.volumeSum += r.Volume.Normalized
			s.tracker.Add(cmp)
			s.statsMu.Unlock()

			dispatcher.Process(r, cmp, elapsed)

			if s.observer != nil {
				s.observer.CycleCompleted(r, cmp, time.Since(started))
			}
			started = time.Now()
		}
	}
}
