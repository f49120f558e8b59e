package ledger

import "context"

// Store persists ledger entries. Append must reject out-of-order sequence
// numbers; the service owns ordering under its commit lock.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	Head(ctx context.Context) (*Entry, error)
	Range(ctx context.Context, from, to uint64) ([]Entry, error)
	SetMirrorStatus(ctx context.Context, seq uint64, status MirrorStatus) error
}
