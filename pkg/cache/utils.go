package cache

import (
	"crypto/md5"
	"encoding/hex"
)

// HashKey shortens long keys such as serialised query filters.
func HashKey(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

// BuildPattern returns a glob matching every key under prefix.
func BuildPattern(prefix string) string {
	return prefix + "*"
}
