// Package cache stores encoded result sets of cache-enabled queries.
package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Store keeps opaque values for a bounded time. Implementations are safe for
// concurrent use.
type Store interface {
	// Get returns the value stored under key; ok is false on a miss.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	// Invalidate drops every key with the given prefix.
	Invalidate(ctx context.Context, prefix string) error
}

// Key derives the cache key of a statement. Keys of one entity share the
// "<entity>:" prefix so mutations can invalidate them together.
func Key(entity, sql string, args []any) string {
	var b strings.Builder
	b.WriteString(sql)
	for _, a := range args {
		b.WriteByte(0)
		fmt.Fprintf(&b, "%T:%v", a, a)
	}
	return fmt.Sprintf("%s:%016x", entity, xxhash.Sum64String(b.String()))
}

// Prefix is the key prefix shared by every entry of entity.
func Prefix(entity string) string {
	return entity + ":"
}
