package runner

import "sync"

// StopController owns the authoritative "stop requested" flag for a
// session. It is shared by handle: the polling loop holds a reference and
// re-reads it at every check point, so a request made after the loop
// started is still observed. The flag is never copied into loop-local
// state.
type StopController struct {
	mutex         sync.RWMutex
	stopRequested bool
	userStopped   bool
}

// NewStopController returns a controller with no stop pending.
func NewStopController() *StopController {
	return &StopController{}
}

// RequestStop records that the user asked the run to stop. Safe to call
// any number of times; calls after the first have no further effect.
func (c *StopController) RequestStop() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.stopRequested = true
	c.userStopped = true
}

// StopRequested reports whether a stop has been requested. It reflects the
// most recent RequestStop call immediately, including to code that began
// executing before the call.
func (c *StopController) StopRequested() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.stopRequested
}

// UserStopped reports whether the session ended due to user action, as
// opposed to natural completion or failure. Consumed for final messaging.
func (c *StopController) UserStopped() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.userStopped
}

// Reset clears the controller at the start of a new session.
func (c *StopController) Reset() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.stopRequested = false
	c.userStopped = false
}
