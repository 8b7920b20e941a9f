// Package lock serializes transaction submission per signing account.
package lock

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrLockHeld is returned when another dispatch already owns the account.
var ErrLockHeld = errors.New("account lock held")

// AccountLock guards nonce use for an account. The returned release func is
// safe to call more than once.
type AccountLock interface {
	Acquire(ctx context.Context, account common.Address) (func(), error)
}

// Local is an in-process AccountLock.
type Local struct {
	mu    sync.Mutex
	locks map[common.Address]*sync.Mutex
}

func NewLocal() *Local {
	return &Local{locks: make(map[common.Address]*sync.Mutex)}
}

func (l *Local) Acquire(ctx context.Context, account common.Address) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	m, ok := l.locks[account]
	if !ok {
		m = &sync.Mutex{}
		l.locks[account] = m
	}
	l.mu.Unlock()

	if !m.TryLock() {
		return nil, ErrLockHeld
	}
	var once sync.Once
	return func() { once.Do(m.Unlock) }, nil
}

var _ AccountLock = (*Local)(nil)
