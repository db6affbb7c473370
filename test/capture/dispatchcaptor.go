// Package capture provides captors recording what elonbot components send out so tests can
// assert on it
package capture

import (
	"context"
	"sync"
)

// DispatchCaptor holds messages dispatched to it keyed by user ID. It fails dispatches to the
// users in FailFor with the configured error
type DispatchCaptor struct {
	sync.Mutex
	SentMessages map[string][]string
	FailFor      map[string]error
}

// NewDispatchCaptor returns a new initialized DispatchCaptor instance
func NewDispatchCaptor() (dc *DispatchCaptor) {
	dc = new(DispatchCaptor)
	dc.SentMessages = make(map[string][]string)
	dc.FailFor = make(map[string]error)

	return dc
}

// Dispatch captures the text sent to userID or fails if userID is in FailFor
func (dc *DispatchCaptor) Dispatch(ctx context.Context, userID string, text string) (err error) {
	dc.Lock()
	defer dc.Unlock()

	if err, ok := dc.FailFor[userID]; ok {
		return err
	}

	dc.SentMessages[userID] = append(dc.SentMessages[userID], text)

	return nil
}

// Messages returns a copy of the messages sent to userID
func (dc *DispatchCaptor) Messages(userID string) (messages []string) {
	dc.Lock()
	defer dc.Unlock()

	return append([]string(nil), dc.SentMessages[userID]...)
}
