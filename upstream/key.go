package upstream

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint returns a short, non-reversible identifier for a credential,
// suitable for logs and cache keys.
func Fingerprint(credential string) string {
	sum := sha256.Sum256([]byte(NormalizeCredential(credential)))
	return hex.EncodeToString(sum[:8])
}

// cacheKey derives the manager key for an (endpoint, credential) pair.
func cacheKey(endpoint, credential string) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	return strconv.FormatUint(xxhash.Sum64String(endpoint+"\x00"+Fingerprint(credential)), 16)
}
