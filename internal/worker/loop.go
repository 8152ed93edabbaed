package worker

import (
	"fmt"
	"time"
)

// Next tells the polling loop what to do after a pass: continue after an
// interval, or break. Holding the wake delay in a value keeps the schedule in
// one place, so the sleep could be swapped for an event trigger without
// touching the state machine.
type Next struct {
	err      error
	quit     bool
	interval time.Duration
}

func (n Next) String() string {
	if n.err != nil {
		return fmt.Sprintf("[break] with error: %v", n.err)
	}
	if n.quit {
		return "[break] without error"
	}
	return fmt.Sprintf("[continue] interval: %s", n.interval)
}

// Continue schedules the next pass after interval.
func Continue(interval time.Duration) Next {
	return Next{interval: interval}
}

// Break stops the loop, with err or nil.
func Break(err error) Next {
	return Next{quit: true, err: err}
}
