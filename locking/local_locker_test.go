package locking

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTryLockExclusion(t *testing.T) {
	l := NewLocalLocker()

	require.True(t, l.TryLock("service:1", "worker-a"))
	require.False(t, l.TryLock("service:1", "worker-b"))

	ident, ok := l.LockedBy("service:1")
	require.True(t, ok)
	require.Equal(t, "worker-a", ident)

	l.Unlock("service:1", false)
	require.True(t, l.TryLock("service:1", "worker-b"))
}

func TestUnlockWithRemoveForgetsIdentity(t *testing.T) {
	l := NewLocalLocker()
	require.True(t, l.TryLock("conn:1", "syncer"))
	l.Unlock("conn:1", true)

	_, ok := l.LockedBy("conn:1")
	require.False(t, ok)
}

func TestDeleteIsIdempotent(t *testing.T) {
	l := NewLocalLocker()
	l.Delete("nope")
	require.True(t, l.TryLock("nope", "a"))
}
