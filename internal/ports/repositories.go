package ports

import "context"

// RecordStore persists JSON-encoded site records keyed by domain. found is
// false, with a nil error, when the key has never been written.
type RecordStore interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
}

// RecordLister is implemented by stores that can enumerate their keys.
type RecordLister interface {
	Keys(ctx context.Context) ([]string, error)
}

// StatusCounter is implemented by stores that can count records per status
// without loading them.
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[string]int, error)
}
