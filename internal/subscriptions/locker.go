package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/redis"
)

const storePlanLockScope = "store-plan"

// StoreLocker serializes plan changes and enforcement per store.
type StoreLocker interface {
	WithStoreLock(ctx context.Context, storeID uuid.UUID, fn func(ctx context.Context) error) error
}

// storeMutex is the part of *redsync.Mutex the locker uses.
type storeMutex interface {
	LockContext(ctx context.Context) error
	UnlockContext(ctx context.Context) (bool, error)
}

// RedsyncLocker holds a redsync mutex keyed by store for the duration of fn.
type RedsyncLocker struct {
	newMutex func(name string) storeMutex
	keyFor   func(storeID uuid.UUID) string
	logg     *logger.Logger
}

func NewRedsyncLocker(client *redis.Client, expiry time.Duration, tries int, logg *logger.Logger) (*RedsyncLocker, error) {
	if client == nil || client.Raw() == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if expiry <= 0 {
		return nil, fmt.Errorf("lock expiry must be positive")
	}
	if tries <= 0 {
		tries = 1
	}
	rs := redsync.New(goredis.NewPool(client.Raw()))
	return &RedsyncLocker{
		newMutex: func(name string) storeMutex {
			return rs.NewMutex(name, redsync.WithExpiry(expiry), redsync.WithTries(tries))
		},
		keyFor: func(storeID uuid.UUID) string {
			return client.LockKey(storePlanLockScope, storeID.String())
		},
		logg: logg,
	}, nil
}

// WithStoreLock returns a Conflict error when the lock stays held by another
// caller for every retry.
func (l *RedsyncLocker) WithStoreLock(ctx context.Context, storeID uuid.UUID, fn func(ctx context.Context) error) error {
	mutex := l.newMutex(l.keyFor(storeID))
	if err := mutex.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "store plan update already in progress")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire store lock")
	}
	defer func() {
		if ok, err := mutex.UnlockContext(context.WithoutCancel(ctx)); (err != nil || !ok) && l.logg != nil {
			lockCtx := l.logg.WithStoreID(ctx, storeID.String())
			l.logg.Warn(lockCtx, fmt.Sprintf("store lock release failed: %v", err))
		}
	}()
	return fn(ctx)
}
