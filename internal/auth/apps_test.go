package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banker_api/internal/domain"
	"banker_api/internal/store"
	"banker_api/internal/store/memory"
)

func TestAppStoreRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	apps := NewAppStore(memory.New())

	app, err := apps.Register(ctx, "UBOT", "correct-horse", []string{ScopeTransfer})
	require.NoError(t, err)
	assert.NotEqual(t, "correct-horse", app.SecretHash)

	got, err := apps.Authenticate(ctx, "UBOT", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "UBOT", got.ID)
	assert.Equal(t, []string{ScopeTransfer}, got.Scopes)

	_, err = apps.Authenticate(ctx, "UBOT", "wrong-secret")
	assert.ErrorIs(t, err, domain.ErrAuth)
	_, err = apps.Authenticate(ctx, "UNKNOWN", "correct-horse")
	assert.ErrorIs(t, err, domain.ErrAuth)
}

func TestAppStoreRegisterValidation(t *testing.T) {
	ctx := context.Background()
	apps := NewAppStore(memory.New())
	_, err := apps.Register(ctx, "UBOT", "correct-horse", nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		appID  string
		secret string
		scopes []string
	}{
		{"duplicate", "UBOT", "correct-horse", nil},
		{"bad id", "bad id!", "correct-horse", nil},
		{"short secret", "UNEW", "short", nil},
		{"banker scope", "UNEW", "correct-horse", []string{ScopeBanker}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := apps.Register(ctx, tt.appID, tt.secret, tt.scopes)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestAppStoreFindNotFound(t *testing.T) {
	_, err := NewAppStore(memory.New()).Find(context.Background(), "UNKNOWN")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAppStoreConcurrentRegister(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	apps := NewAppStore(mem)

	const n = 8
	var wg sync.WaitGroup
	var registered atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := apps.Register(ctx, "UBOT", "correct-horse", nil)
			if err == nil {
				registered.Add(1)
				return
			}
			assert.ErrorIs(t, err, domain.ErrValidation)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), registered.Load())
	assert.Equal(t, 1, mem.Len(store.TableApps))
}
