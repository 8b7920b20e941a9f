package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var account = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

func testAccountLock(t *testing.T, l AccountLock) {
	ctx := context.Background()

	release, err := l.Acquire(ctx, account)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, account)
	assert.ErrorIs(t, err, ErrLockHeld)

	other, err := l.Acquire(ctx, common.HexToAddress("0x01"))
	require.NoError(t, err)
	other()

	release()
	release()

	again, err := l.Acquire(ctx, account)
	require.NoError(t, err)
	again()
}

func TestLocal(t *testing.T) {
	testAccountLock(t, NewLocal())

	t.Run("CancelledContext", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewLocal().Acquire(ctx, account)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("FLASHARB_TEST_REDIS")
	if addr == "" {
		t.Skip("FLASHARB_TEST_REDIS not set")
	}

	l, err := DialRedis(context.Background(), addr, "", 0, time.Minute, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer l.Close()

	testAccountLock(t, l)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "flasharb:lock:0x70997970C51812dc3A010C7d01b50e0d17dc79C8", Key(account))
}
