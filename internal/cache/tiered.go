package cache

import (
	"context"
	"time"

	"github.com/MishaNavrotsky/authd/internal/domain/session"
)

var _ session.Cache = (*Tiered)(nil)

// Tiered joins the local and distributed tiers.
//
// Get races both tiers and returns the first positive hit. A local miss
// is not a result by itself: after a redeploy the local tier is cold
// while the distributed tier still holds the truth, so local absence
// must never reject a session. A distributed-tier failure surfaces only
// when neither tier produced a hit.
//
// Set and Del apply to both tiers and report success only once the
// distributed tier acknowledged the write.
type Tiered struct {
	local  *Local
	remote *Remote
}

func NewTiered(local *Local, remote *Remote) *Tiered {
	return &Tiered{local: local, remote: remote}
}

type lookup struct {
	val string
	ok  bool
	err error
}

func (t *Tiered) Get(ctx context.Context, key string) (string, bool, error) {
	results := make(chan lookup, 2)

	go func() {
		val, ok := t.local.Get(key)
		results <- lookup{val: val, ok: ok}
	}()
	go func() {
		val, ok, err := t.remote.Get(ctx, key)
		results <- lookup{val: val, ok: ok, err: err}
	}()

	var remoteErr error
	for i := 0; i < 2; i++ {
		r := <-results
		if r.err != nil {
			remoteErr = r.err
			continue
		}
		if r.ok {
			return r.val, true, nil
		}
	}
	if remoteErr != nil {
		// Both tiers missed and the authoritative one failed: this is
		// not "absent", it is "unknown".
		return "", false, remoteErr
	}
	return "", false, nil
}

func (t *Tiered) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := t.remote.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	t.local.Set(key, value)
	return nil
}

func (t *Tiered) Del(ctx context.Context, key string) error {
	t.local.Del(key)
	return t.remote.Del(ctx, key)
}
