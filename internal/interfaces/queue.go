package interfaces

import "context"

// QueueStore is the durable FIFO of pending batches. Pop never blocks: an empty
// queue returns ok == false with a nil error.
type QueueStore interface {
	Push(ctx context.Context, payload string) (bool, error)
	Pop(ctx context.Context) (payload string, ok bool, err error)
	Len(ctx context.Context) (int64, error)
	Close() error
}
