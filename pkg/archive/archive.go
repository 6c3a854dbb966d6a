package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Archive records request outcomes into a Store and replays them.
type Archive struct {
	store  Store
	runID  uuid.UUID
	logger zerolog.Logger
	now    func() time.Time
}

// New creates an archive over store. Every entry written through it carries
// the same run id.
func New(store Store, logger zerolog.Logger) *Archive {
	if store == nil {
		panic("archive store cannot be nil")
	}
	return &Archive{
		store:  store,
		runID:  uuid.New(),
		logger: logger,
		now:    time.Now,
	}
}

// RunID returns the identifier stamped on entries written by this archive.
func (a *Archive) RunID() uuid.UUID {
	return a.runID
}

// Store returns the backing store.
func (a *Archive) Store() Store {
	return a.store
}

// Record stores the outcome of d. Exactly one of payload or err is expected;
// a non-nil err is stored as a Failure.
func (a *Archive) Record(ctx context.Context, d Descriptor, payload []byte, err error) error {
	sanitized := d.Sanitized()
	entry := &Entry{
		Key:        sanitized.Key(),
		Descriptor: sanitized,
		Failure:    FailureFrom(err),
		RunID:      a.runID.String(),
		StoredAt:   a.now().UTC(),
	}
	if entry.Failure == nil {
		entry.Payload = payload
	}

	if err := a.store.Put(ctx, entry); err != nil {
		return fmt.Errorf("archive %s: %w", sanitized.Kind, err)
	}

	a.logger.Debug().
		Str("key", entry.Key).
		Str("descriptor", sanitized.String()).
		Str("outcome", entry.Outcome()).
		Msg("Archived request")

	return nil
}

// Replay returns the recorded payload of d. A recorded failure is returned as
// a *Failure error. Unknown descriptors yield ErrNotArchived.
func (a *Archive) Replay(ctx context.Context, d Descriptor) ([]byte, error) {
	key := d.Key()

	entry, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", d.Sanitized().String(), err)
	}

	a.logger.Debug().
		Str("key", key).
		Str("outcome", entry.Outcome()).
		Str("run_id", entry.RunID).
		Msg("Replayed request")

	if entry.Failure != nil {
		return nil, entry.Failure
	}
	return entry.Payload, nil
}
