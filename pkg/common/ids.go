package common

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

// NormalizeName lowers the surface form, trims surrounding punctuation and
// collapses internal whitespace. This exact-match baseline is the only
// resolution rule applied by default; synonym tables are a configurable
// extension layered on top, never assumed.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimFunc(name, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
	return strings.Join(strings.Fields(name), " ")
}

// EntityID derives the stable identifier for an entity from its canonical
// name (when known) or normalized surface form, plus its type. The same
// concept extracted from different publications hashes to the same node.
func EntityID(name string, canonicalID string, entityType EntityType) string {
	key := NormalizeName(name)
	if canonicalID != "" {
		key = canonicalID
	}
	sum := sha256.Sum256([]byte(key + "|" + string(entityType)))
	return strings.ToLower(string(entityType)) + "_" + hex.EncodeToString(sum[:8])
}

// PublicationID derives a stable identifier from the source filename and
// its content hash, so re-ingesting the same document maps onto the same
// publication node.
func PublicationID(path string, content []byte) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	sum := sha256.Sum256(append([]byte(base+"|"), content...))
	return "pub_" + hex.EncodeToString(sum[:6])
}

// PageID builds the page identifier from its idempotency key.
func PageID(pubID string, pageNumber int) string {
	return fmt.Sprintf("%s_page_%03d", pubID, pageNumber)
}

// RelationshipKey is the idempotency key for a typed entity edge.
func RelationshipKey(sourceID, targetID string, relType RelationType) string {
	return sourceID + "|" + targetID + "|" + string(relType)
}
