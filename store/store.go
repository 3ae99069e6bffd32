package store

import (
	"errors"

	"github.com/agoralabs/agora/common"
)

// ErrKeyNotFound for key is not found in store.
var ErrKeyNotFound = errors.New("KeyNotFound")

// Store is the interface for key/value storages.
type Store interface {
	Put(key common.Bytes, value interface{}) error
	Delete(key common.Bytes) error
	Get(key common.Bytes, value interface{}) error
}
