package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tcsync/internal/common"
	"github.com/ternarybob/tcsync/internal/models"
	"github.com/ternarybob/tcsync/internal/queue"
	"github.com/ternarybob/tcsync/internal/storage/badger"
)

var errSyncDisabled = errors.New("training connect sync is disabled")

// enqueue validates the batch in path and pushes it onto the configured queue
func enqueue(config *common.Config, logger arbor.ILogger, path string) error {
	if !config.Features.TrainingConnectEnabled {
		return errSyncDisabled
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read batch file: %w", err)
	}
	units, err := models.DecodeBatch(string(data))
	if err != nil {
		return err
	}
	payload, err := models.EncodeBatch(units)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var db *badgerdb.DB
	if config.Queue.Backend == "badger" {
		// The worker owns resets; a producer must never wipe pending batches.
		badgerConfig := config.Storage.Badger
		badgerConfig.ResetOnStartup = false
		conn, err := badger.NewBadgerDB(logger, &badgerConfig)
		if err != nil {
			return err
		}
		defer conn.Close()
		db = conn.DB()
	}

	store, err := queue.NewStore(ctx, config, db, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := store.Push(ctx, payload); err != nil {
		return err
	}

	logger.Info().
		Str("file", path).
		Int("units", len(units)).
		Str("queue", config.Queue.Name).
		Msg("Batch enqueued")
	return nil
}
