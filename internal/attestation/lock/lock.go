// Package lock serializes issuance per wallet address so two concurrent
// requests can never sign different messages under the same nonce.
package lock

import (
	"context"
)

// Locker grants exclusive access to a key until the returned release is called.
// Lock blocks until acquired or ctx ends; release is safe to call once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}
