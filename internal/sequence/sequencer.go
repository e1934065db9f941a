// Package sequence issues per-chat message sequence numbers.
//
// Numbers are strictly increasing and gap-free in issuance order, even
// under concurrent callers in separate processes sharing the same store.
// Issuance order may differ from persistence-completion order; display
// ordering therefore always sorts by sequence, never by arrival.
package sequence

import "context"

// Sequencer hands out the next sequence number for a chat. The Mongo
// implementation lives in the repository package; Memory below serves
// single-process deployments and tests.
type Sequencer interface {
	NextSequence(ctx context.Context, chatID string) (int64, error)
}
