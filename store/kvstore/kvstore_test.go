package kvstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agoralabs/agora/common"
	"github.com/agoralabs/agora/store"
	"github.com/agoralabs/agora/store/database/backend"
)

type record struct {
	Owner   string                  `json:"owner"`
	Height  uint64                  `json:"height"`
	Entries map[string]common.Bytes `json:"entries,omitempty"`
}

func TestKVStore(t *testing.T) {
	assert := assert.New(t)

	db := backend.NewMemDatabase()
	kvstore := NewKVStore(db)

	key := []byte("abc123")

	err := kvstore.Put(key, "hello!")
	assert.Nil(err)

	var str string
	err = kvstore.Get(key, &str)
	assert.Nil(err)
	assert.Equal("hello!", str)

	err = kvstore.Delete(key)
	assert.Nil(err)

	err = kvstore.Get(key, &str)
	assert.NotNil(err)
	assert.Equal(store.ErrKeyNotFound, err)

	in := record{
		Owner:   "alice",
		Height:  6,
		Entries: map[string]common.Bytes{"k1": []byte("v1")},
	}
	err = kvstore.Put([]byte("rec/1"), in)
	assert.Nil(err)

	var out record
	err = kvstore.Get([]byte("rec/1"), &out)
	assert.Nil(err)
	assert.Equal(in, out)
}

func TestMemDatabaseIterator(t *testing.T) {
	assert := assert.New(t)

	db := backend.NewMemDatabase()
	assert.Nil(db.Put([]byte("fr/a"), []byte("1")))
	assert.Nil(db.Put([]byte("fr/c"), []byte("3")))
	assert.Nil(db.Put([]byte("fr/b"), []byte("2")))
	assert.Nil(db.Put([]byte("ap/a"), []byte("9")))

	it := db.NewIteratorWithPrefix([]byte("fr/"))
	defer it.Release()

	var keys, values []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
		values = append(values, string(it.Value()))
	}
	assert.Equal([]string{"fr/a", "fr/b", "fr/c"}, keys)
	assert.Equal([]string{"1", "2", "3"}, values)
}

func TestMemDatabaseBatch(t *testing.T) {
	assert := assert.New(t)

	db := backend.NewMemDatabase()
	assert.Nil(db.Put([]byte("stale"), []byte("x")))

	batch := db.NewBatch()
	assert.Nil(batch.Put([]byte("k1"), []byte("v1")))
	assert.Nil(batch.Put([]byte("k2"), []byte("v2")))
	assert.Nil(batch.Delete([]byte("stale")))

	// Nothing lands before Write.
	_, err := db.Get([]byte("k1"))
	assert.Equal(store.ErrKeyNotFound, err)

	assert.Nil(batch.Write())
	v, err := db.Get([]byte("k1"))
	assert.Nil(err)
	assert.Equal([]byte("v1"), v)
	_, err = db.Get([]byte("stale"))
	assert.Equal(store.ErrKeyNotFound, err)
}
