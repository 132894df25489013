package migration

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/burugo/schemaforge/common"
)

// Locker serializes migration runs. release must be called once the run is over.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// LockKey is the key runs against database name and ledger table lock on.
func LockKey(database, ledger string) string {
	return "schemaforge:" + database + ":" + ledger
}

// LocalLocker serializes runs inside one process, one slot per key. Slots are never
// removed; the key set is one entry per database a process migrates.
type LocalLocker struct {
	slots sync.Map // map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{}
}

// defaultLocker is shared by migrators built without WithLocker.
var defaultLocker = NewLocalLocker()

// Acquire waits for the slot of key or gives up when ctx is done.
func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	v, _ := l.slots.LoadOrStore(key, make(chan struct{}, 1))
	slot := v.(chan struct{})
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %v", common.ErrLockNotAcquired, key, ctx.Err())
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			select {
			case <-slot:
			default:
				log.Printf("WARN: released migration lock %s that was not held", key)
			}
		})
	}, nil
}
