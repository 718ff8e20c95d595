package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// Locks hands out per-alias file locks. Holding a lock serializes
// state-mutating operations on one device across processes; operations on
// different aliases never contend.
type Locks struct {
	dir string
}

// NewLocks creates the lock directory if needed.
func NewLocks(dir string) (*Locks, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	return &Locks{dir: dir}, nil
}

// Acquire blocks until the alias lock is held or ctx is done. The returned
// release function must be called on every exit path.
func (l *Locks) Acquire(ctx context.Context, alias string) (func(), error) {
	path := filepath.Join(l.dir, lockFileName(alias))
	fl := flock.New(path)
	ok, err := fl.TryLockContext(ctx, 250*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("acquire lock for %q: %w", alias, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock for %q not acquired", alias)
	}
	return func() {
		_ = fl.Unlock()
	}, nil
}

func lockFileName(alias string) string {
	alias = NormalizeAlias(alias)
	var b strings.Builder
	for _, r := range alias {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		b.WriteString("device")
	}
	return b.String() + ".lock"
}
