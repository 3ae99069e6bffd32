package database

// Database wraps all database operations. All methods are safe for
// concurrent use.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	NewIteratorWithPrefix(prefix []byte) Iterator
	Close()
	NewBatch() Batch
}

// Iterator iterates over a key range in key order.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
}

// Batch is a write-only database that commits changes to its host
// database when Write is called. Batch cannot be used concurrently.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	ValueSize() int
	Write() error
	Reset()
}
