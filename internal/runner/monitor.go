package runner

import "time"

// monitor is the watchdog for one subprocess execution. It observes either a
// release (the runner saw the process exit) or its deadline, whichever comes
// first. On expiry it invokes the runner's terminate callback, which performs
// the two-phase process-group kill on the monitor's own goroutine.
type monitor struct {
	released chan struct{}
	finished chan struct{}
}

func startMonitor(timeout, grace time.Duration, terminate func(grace time.Duration, released <-chan struct{})) *monitor {
	m := &monitor{
		released: make(chan struct{}),
		finished: make(chan struct{}),
	}
	go func() {
		defer close(m.finished)
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-m.released:
		case <-timer.C:
			terminate(grace, m.released)
		}
	}()
	return m
}

// release signals that the subprocess has exited and waits for the monitor
// goroutine to finish, so a termination signal can never race a process slot
// the OS may have already reused.
func (m *monitor) release() {
	close(m.released)
	<-m.finished
}
