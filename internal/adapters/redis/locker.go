package redis

import (
	"context"
	"errors"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"

	"github.com/escrowcore/ledgercore/internal/scheduler"
)

// lockTTL bounds how long a scheduler task may hold its named lock
// before redsync auto-expires it — comfortably above the slowest of
// C7's four tasks so a legitimate run is never pre-empted mid-sweep.
const lockTTL = 10 * time.Minute

// Locker is the redsync-backed implementation of scheduler.Locker,
// giving C7 a real distributed lock across a multi-node deployment.
type Locker struct {
	rs *redsync.Redsync
}

func NewLocker(conn *Connection) (*Locker, error) {
	client, err := conn.GetClient(context.Background())
	if err != nil {
		return nil, err
	}

	pool := goredis.NewPool(client)

	return &Locker{rs: redsync.New(pool)}, nil
}

// TryLock attempts to acquire name without blocking, returning ok=false
// (not an error) if another node already holds it — satisfies
// scheduler.Locker.
func (l *Locker) TryLock(ctx context.Context, name string) (func(context.Context) error, bool, error) {
	mutex := l.rs.NewMutex("scheduler-lock:"+name, redsync.WithExpiry(lockTTL), redsync.WithTries(1))

	if err := mutex.LockContext(ctx); err != nil {
		if errors.Is(err, redsync.ErrFailed) {
			return nil, false, nil
		}

		return nil, false, err
	}

	unlock := func(ctx context.Context) error {
		_, err := mutex.UnlockContext(ctx)
		return err
	}

	return unlock, true, nil
}

var _ scheduler.Locker = (*Locker)(nil)
