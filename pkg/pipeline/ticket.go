package pipeline

import "sync"

// Ticket is an exclusive execution ticket. Holding it is the only way to run
// the validate, merge and split sequence; there is no timeout and no
// ordering guarantee among waiters.
type Ticket struct {
	mu sync.Mutex
}

// Acquire blocks until the ticket is free and takes it.
func (t *Ticket) Acquire() {
	t.mu.Lock()
}

// Release hands the ticket back.
func (t *Ticket) Release() {
	t.mu.Unlock()
}

// processTicket serializes every pipeline execution in the process.
var processTicket Ticket
