package queue

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tcsync/internal/common"
	"github.com/ternarybob/tcsync/internal/interfaces"
)

// NewStore opens the queue backend selected in config. db is only used by the
// badger backend and may be nil otherwise.
func NewStore(ctx context.Context, config *common.Config, db *badger.DB, logger arbor.ILogger) (interfaces.QueueStore, error) {
	switch config.Queue.Backend {
	case "redis":
		return NewRedisStore(ctx, config.Redis.URL, config.Queue.Name, logger)
	case "badger":
		return NewBadgerStore(db, config.Queue.Name, logger)
	default:
		return nil, fmt.Errorf("unsupported queue backend: %s", config.Queue.Backend)
	}
}
