package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Store is a byte cache with per-entry TTL. Implemented by the in-memory
// backend (dev) and the Redis backend (prod). Used as the suggestion tier:
// identical completed turns get identical suggestion payloads.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// SuggestKey identifies one enrichment input: app + gateway version +
// sha256 over the turn text and its tool context.
type SuggestKey struct {
	AppName   string
	VersionID string
	Hash      string
}

// String converts the structured key into the final string used in Redis/map.
func (k SuggestKey) String() string {
	// suggest:<APP>:<VERSION_ID>:<HASH_HEX>
	return fmt.Sprintf("suggest:%s:%s:%s", k.AppName, k.VersionID, k.Hash)
}

// BuildSuggestKey normalizes the enrichment input into a stable string,
// hashes it with SHA-256, and fills the SuggestKey struct. toolContext must
// already be in a deterministic encoding (the caller marshals it).
func BuildSuggestKey(appName, versionID, turnText string, toolContext []byte) SuggestKey {
	normalized := "text:" + turnText + "|tools:" + string(toolContext)

	sum := sha256.Sum256([]byte(normalized))

	return SuggestKey{
		AppName:   strings.TrimSpace(appName),
		VersionID: strings.TrimSpace(versionID),
		Hash:      hex.EncodeToString(sum[:]),
	}
}
