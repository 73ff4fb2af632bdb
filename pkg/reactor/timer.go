package reactor

import (
	"sync"
	"time"
)

// Timer is a scheduled task created by Every or After.
type Timer struct {
	stop chan struct{}
	once sync.Once
}

func newTimer() *Timer {
	return &Timer{stop: make(chan struct{})}
}

// Stop cancels the timer. A firing already queued on the loop is skipped.
func (t *Timer) Stop() {
	t.once.Do(func() {
		close(t.stop)
	})
}

func (t *Timer) stopped() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}

func (t *Timer) guard(task Task) Task {
	return func() error {
		if t.stopped() {
			return nil
		}
		return task()
	}
}

// Every runs task on the loop every interval until the timer or the loop is
// stopped.
func (l *Loop) Every(interval time.Duration, task Task) *Timer {
	t := newTimer()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := l.Post(t.guard(task)); err != nil {
					return
				}
			case <-t.stop:
				return
			case <-l.quit:
				return
			}
		}
	}()
	return t
}

// After runs task once on the loop after d. Callers wanting a read timeout
// arm one of these and call Close from the task.
func (l *Loop) After(d time.Duration, task Task) *Timer {
	t := newTimer()
	go func() {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			_ = l.Post(t.guard(task))
		case <-t.stop:
		case <-l.quit:
		}
	}()
	return t
}
