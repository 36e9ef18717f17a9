package widget

import (
	"sync"
	"time"
)

// Timer is a handle to a repeating callback.
type Timer interface {
	// Stop cancels future invocations. It does not wait for an in-flight call and
	// is safe to call more than once.
	Stop()
}

// Scheduler runs fn every d until the returned Timer is stopped.
type Scheduler interface {
	Every(d time.Duration, fn func()) Timer
}

// SystemScheduler is backed by time.Ticker.
type SystemScheduler struct{}

func (SystemScheduler) Every(d time.Duration, fn func()) Timer {
	t := &tickerTimer{done: make(chan struct{})}
	ticker := time.NewTicker(d)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-t.done:
				return
			case <-ticker.C:
				select {
				case <-t.done:
					return
				default:
				}
				fn()
			}
		}
	}()

	return t
}

type tickerTimer struct {
	done chan struct{}
	once sync.Once
}

func (t *tickerTimer) Stop() {
	t.once.Do(func() { close(t.done) })
}
