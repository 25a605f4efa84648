package eklt

import "math"

// schedulerState is the EKF-update scheduler: the active strategy plus
// the state that strategy uses. Only the fields relevant to the strategy
// are meaningful.
type schedulerState struct {
	strategy UpdateStrategy
	everyN   int

	eventsTillNext int     // EveryNEvents countdown
	lastFlush      float64 // EveryNMsecWithEvents, NaN until the first event, changed or not

	// dirty reports a patch change since the last flush. It carries over
	// between ProcessEvents batches and is cleared only by a flush.
	dirty bool
}

func newSchedulerState(p Params) schedulerState {
	return schedulerState{
		strategy:       p.UpdateStrategy,
		everyN:         p.UpdateEveryN,
		eventsTillNext: p.UpdateEveryN,
		lastFlush:      math.NaN(),
	}
}

// reconfigure resets the strategy state when the strategy or its period
// changed. The dirty flag survives: the patches did change.
func (s schedulerState) reconfigure(p Params) schedulerState {
	if s.strategy == p.UpdateStrategy && s.everyN == p.UpdateEveryN {
		return s
	}
	next := newSchedulerState(p)
	next.dirty = s.dirty
	return next
}

// onEvent evaluates the trigger for one event at timestamp ts. changed
// reports whether any patch changed on this event. It returns the next
// state and whether to flush now.
func (s schedulerState) onEvent(ts float64, changed bool) (schedulerState, bool) {
	s.dirty = s.dirty || changed

	switch s.strategy {
	case EveryNEvents:
		s.eventsTillNext--
		if s.eventsTillNext > 0 {
			return s, false
		}
		if !s.dirty {
			s.eventsTillNext = 1 // try again on the next event
			return s, false
		}
		s.eventsTillNext = s.everyN
		s.dirty = false
		return s, true

	case EveryNMsecWithEvents:
		if math.IsNaN(s.lastFlush) {
			s.lastFlush = ts
		}
		if !s.dirty || ts-s.lastFlush < float64(s.everyN)*1e-3 {
			return s, false
		}
		s.lastFlush = ts
		s.dirty = false
		return s, true
	}
	return s, false
}

// onBatchEnd evaluates the end-of-batch trigger.
func (s schedulerState) onBatchEnd() (schedulerState, bool) {
	if s.strategy != EveryMessage || !s.dirty {
		return s, false
	}
	s.dirty = false
	return s, true
}
