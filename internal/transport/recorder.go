package transport

import (
	"context"
	"sync"
)

// Recorder is a hand-written, in-memory Transport used in unit tests.
// It records every message it is asked to send.
type Recorder struct {
	mu       sync.Mutex
	messages []Message

	// Unconfigured makes Configured report false.
	Unconfigured bool
	// SendErr, when set, decides the outcome of each call. The argument is
	// the 1-based call number.
	SendErr func(call int) error
	// Delay simulates a slow relay.
	Delay func(call int)
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Configured() bool {
	return !r.Unconfigured
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	clone := msg
	clone.To = append([]string(nil), msg.To...)
	r.messages = append(r.messages, clone)
	call := len(r.messages)
	delay, sendErr := r.Delay, r.SendErr
	r.mu.Unlock()

	if delay != nil {
		delay(call)
	}
	if sendErr != nil {
		return sendErr(call)
	}
	return nil
}

// Messages returns a copy of every message received so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Calls returns the number of Send calls.
func (r *Recorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

var _ Transport = (*Recorder)(nil)
