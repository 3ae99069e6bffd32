package common

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
)

// CanonicalJSON serializes v into the canonical JSON form used for
// digests: object keys sorted, no insignificant whitespace. Two values
// that are structurally equal always canonicalize to identical bytes.
func CanonicalJSON(v interface{}) (Bytes, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return CanonicalizeJSON(raw)
}

// CanonicalizeJSON re-encodes raw JSON into the canonical form. Returns
// an error if raw is not valid JSON.
func CanonicalizeJSON(raw Bytes) (Bytes, error) {
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("not structurally serializable: %v", err)
	}
	// encoding/json sorts map keys on marshal, which yields the
	// canonical ordering.
	return json.Marshal(decoded)
}

// DigestBytes returns the sha256 digest of b.
func DigestBytes(b Bytes) Hash {
	return Hash(sha256.Sum256(b))
}

// DigestJSON canonicalizes v and digests the result.
func DigestJSON(v interface{}) (Hash, error) {
	canonical, err := CanonicalJSON(v)
	if err != nil {
		return Hash{}, err
	}
	return DigestBytes(canonical), nil
}

// DigestMap digests a string-keyed byte map in key order. Used for the
// deterministic portions of a candidate result, where map iteration
// order must not leak into the digest.
func DigestMap(m map[string]Bytes) Hash {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write(m[k])
		h.Write([]byte{0})
	}
	return BytesToHash(h.Sum(nil))
}
