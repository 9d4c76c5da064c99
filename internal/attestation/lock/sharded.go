package lock

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"attestor/pkg/platform/sentinel"
)

// numShards spreads addresses over striped locks. Two addresses may share a
// shard; that only costs throughput, never correctness.
const numShards = 128

// Sharded is an in-process Locker. Only correct when a single replica
// issues credentials; multi-replica deployments use the Redis locker.
type Sharded struct {
	shards [numShards]chan struct{}
}

// NewSharded builds a Sharded locker.
func NewSharded() *Sharded {
	l := &Sharded{}
	for i := range l.shards {
		l.shards[i] = make(chan struct{}, 1)
	}
	return l
}

// Lock acquires the shard for key, honoring ctx cancellation while waiting.
func (l *Sharded) Lock(ctx context.Context, key string) (func(), error) {
	shard := l.shards[shardFor(key)]
	select {
	case shard <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", sentinel.ErrLockTimeout, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-shard })
	}, nil
}

func shardFor(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % numShards
}
