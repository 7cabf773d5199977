package counter

import "sync"

// Counter is a process-wide integer shared by every connection.
type Counter struct {
	value int64
	lock  sync.Mutex
}

// New creates a counter starting at initial.
func New(initial int64) *Counter {
	return &Counter{value: initial}
}

func (c *Counter) use(f func(v *int64)) {
	c.lock.Lock()
	defer c.lock.Unlock()
	f(&c.value)
}

// Read returns the current value.
func (c *Counter) Read() (rv int64) {
	c.use(func(v *int64) {
		rv = *v
	})
	return
}

// Add adds n and returns the new value.
func (c *Counter) Add(n int64) (rv int64) {
	c.use(func(v *int64) {
		*v += n
		rv = *v
	})
	return
}

// Subtract subtracts n and returns the new value.
func (c *Counter) Subtract(n int64) (rv int64) {
	c.use(func(v *int64) {
		*v -= n
		rv = *v
	})
	return
}
