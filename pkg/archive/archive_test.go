package archive

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testFailure struct{ status int }

func (e *testFailure) Error() string { return fmt.Sprintf("status %d", e.status) }

func (e *testFailure) ArchiveFailure() *Failure {
	return &Failure{Class: "rate_limit", StatusCode: e.status, Attempts: 3, Exhausted: true, Message: e.Error()}
}

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()

	sqliteStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func TestArchive_RoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			arc := New(store, zerolog.Nop())

			recorded := CommandDescriptor("ssh -p 29418 alice@host gerrit version")
			require.NoError(t, arc.Record(ctx, recorded, []byte("gerrit version 2.8.4"), nil))

			replayed := CommandDescriptor("ssh -p 29418 bob@host gerrit version")
			payload, err := arc.Replay(ctx, replayed)
			require.NoError(t, err)
			assert.Equal(t, []byte("gerrit version 2.8.4"), payload)
		})
	}
}

func TestArchive_FailureIsReRaised(t *testing.T) {
	ctx := context.Background()

	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			arc := New(store, zerolog.Nop())
			d := CommandDescriptor("ssh -p 29418 alice@host gerrit query limit:1")

			require.NoError(t, arc.Record(ctx, d, []byte("ignored"), &testFailure{status: 429}))

			payload, err := arc.Replay(ctx, d)
			assert.Nil(t, payload)

			var failure *Failure
			require.True(t, errors.As(err, &failure), "want *Failure, got %v", err)
			assert.Equal(t, "rate_limit", failure.Class)
			assert.Equal(t, 429, failure.StatusCode)
			assert.Equal(t, 3, failure.Attempts)
			assert.True(t, failure.Exhausted)
		})
	}
}

func TestArchive_UnknownKey(t *testing.T) {
	ctx := context.Background()

	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			arc := New(store, zerolog.Nop())

			_, err := arc.Replay(ctx, CommandDescriptor("gerrit version"))
			assert.ErrorIs(t, err, ErrNotArchived)
		})
	}
}

func TestArchive_StoresSanitizedDescriptor(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	arc := New(store, zerolog.Nop())

	d := CommandDescriptor("ssh -p 29418 alice@host gerrit version")
	require.NoError(t, arc.Record(ctx, d, []byte("ok"), nil))

	entry, err := store.Get(ctx, d.Key())
	require.NoError(t, err)
	assert.Equal(t, "ssh -p 29418 xxxxx@host gerrit version", entry.Descriptor.Command)
	assert.Equal(t, arc.RunID().String(), entry.RunID)
	assert.Equal(t, 1, store.Len())
}

func TestArchive_OverwriteKeepsLatest(t *testing.T) {
	ctx := context.Background()

	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			arc := New(store, zerolog.Nop())
			d := CommandDescriptor("gerrit version")

			require.NoError(t, arc.Record(ctx, d, nil, errors.New("boom")))
			require.NoError(t, arc.Record(ctx, d, []byte("gerrit version 3.1.0"), nil))

			payload, err := arc.Replay(ctx, d)
			require.NoError(t, err)
			assert.Equal(t, "gerrit version 3.1.0", string(payload))
		})
	}
}

func TestFailureFrom(t *testing.T) {
	assert.Nil(t, FailureFrom(nil))

	plain := FailureFrom(errors.New("exit status 255: ssh alice@host"))
	assert.Equal(t, "error", plain.Class)
	assert.Equal(t, "exit status 255: ssh xxxxx@host", plain.Message)

	wrapped := FailureFrom(fmt.Errorf("page 3: %w", &testFailure{status: 503}))
	assert.Equal(t, 503, wrapped.StatusCode)

	original := &Failure{Class: "command", Message: "x"}
	assert.Same(t, original, FailureFrom(fmt.Errorf("wrap: %w", original)))
}

func TestNew_Panic(t *testing.T) {
	assert.Panics(t, func() { New(nil, zerolog.Nop()) })
}
