package integrity

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// cacheKeyDomain is the ASCII domain-separation key for cache keys,
// zero-padded to 32 bytes when used.
const cacheKeyDomain = "asp.materialize.cache-key"

// CacheInput is the full set of inputs a per-harness materialization
// depends on. Changing any one field changes the key.
type CacheInput struct {
	Integrity           string
	MaterializerVersion string
	HarnessID           string
	PluginName          string
	PluginVersion       string
}

// CacheKey derives the 64-character hex cache key for in.
func CacheKey(in CacheInput) string {
	var key [32]byte
	copy(key[:], cacheKeyDomain)

	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic(fmt.Sprintf("integrity: BLAKE3 keyed hash initialization failed: %v", err))
	}
	fields := []string{in.Integrity, in.MaterializerVersion, in.HarnessID, in.PluginName, in.PluginVersion}
	for i, f := range fields {
		if i > 0 {
			hasher.Write([]byte{0})
		}
		hasher.Write([]byte(f))
	}
	return hex.EncodeToString(hasher.Sum(nil))
}
