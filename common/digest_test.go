package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeJSON(t *testing.T) {
	assert := assert.New(t)

	a, err := CanonicalizeJSON([]byte(`{"b": 2, "a": 1}`))
	assert.Nil(err)
	b, err := CanonicalizeJSON([]byte(`{"a":1,"b":2}`))
	assert.Nil(err)
	assert.Equal(a, b)

	c, err := CanonicalizeJSON([]byte(`{
		"a": 1,
		"b": 2
	}`))
	assert.Nil(err)
	assert.Equal(a, c)

	_, err = CanonicalizeJSON([]byte(`{"a": `))
	assert.NotNil(err)

	_, err = CanonicalizeJSON([]byte(``))
	assert.NotNil(err)
}

func TestDigestJSON(t *testing.T) {
	assert := assert.New(t)

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	h1, err := DigestJSON(payload{Name: "x", Count: 3})
	assert.Nil(err)
	h2, err := DigestJSON(map[string]interface{}{"count": 3, "name": "x"})
	assert.Nil(err)
	assert.Equal(h1, h2)

	h3, err := DigestJSON(payload{Name: "x", Count: 4})
	assert.Nil(err)
	assert.NotEqual(h1, h3)
}

func TestDigestMap(t *testing.T) {
	assert := assert.New(t)

	m1 := map[string]Bytes{"k1": []byte("v1"), "k2": []byte("v2")}
	m2 := map[string]Bytes{"k2": []byte("v2"), "k1": []byte("v1")}
	assert.Equal(DigestMap(m1), DigestMap(m2))

	// Key/value boundaries must not be ambiguous.
	m3 := map[string]Bytes{"k1v": []byte("1"), "k2": []byte("v2")}
	assert.NotEqual(DigestMap(m1), DigestMap(m3))

	assert.Equal(DigestMap(nil), DigestMap(map[string]Bytes{}))
}

func TestHashHex(t *testing.T) {
	assert := assert.New(t)

	h := DigestBytes([]byte("agora"))
	assert.Equal(h, HexToHash(h.Hex()))
	assert.False(h.IsEmpty())
	assert.True(Hash{}.IsEmpty())
}
