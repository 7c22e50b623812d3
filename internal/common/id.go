package common

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Key prefixes shared by every storage backend
const (
	DocumentKeyPrefix  = "doc:"
	EmbeddingKeyPrefix = "emb:"
	FileKeyPrefix      = "file:"
	APIKeyPrefix       = "apikey:"
	RateLimitKeyPrefix = "rl:"
)

// NewDocumentID generates a document id that encodes its owner
// Format: doc:<owner>:<uuid>
func NewDocumentID(ownerID string) string {
	return DocumentKeyPrefix + ownerID + ":" + uuid.New().String()
}

// OwnerDocumentPrefix is the key prefix for every document owned by ownerID
func OwnerDocumentPrefix(ownerID string) string {
	return DocumentKeyPrefix + ownerID + ":"
}

// EmbeddingKey returns the store key holding the embedding for a document id
func EmbeddingKey(documentID string) string {
	return EmbeddingKeyPrefix + documentID
}

// OwnerEmbeddingPrefix scopes an embedding scan to one owner
func OwnerEmbeddingPrefix(ownerID string) string {
	return EmbeddingKeyPrefix + OwnerDocumentPrefix(ownerID)
}

// NewFileID builds the key for a raw uploaded file
// Format: file:<owner>/<unix millis>-<filename>
func NewFileID(ownerID string, unixMillis int64, filename string) string {
	return fmt.Sprintf("%s%s/%d-%s", FileKeyPrefix, ownerID, unixMillis, filename)
}

// OwnerFilePrefix is the key prefix for every raw file owned by ownerID
func OwnerFilePrefix(ownerID string) string {
	return FileKeyPrefix + ownerID + "/"
}

// DocumentOwner extracts the owner from a document id, or "" if the id is malformed
func DocumentOwner(documentID string) string {
	rest, ok := strings.CutPrefix(documentID, DocumentKeyPrefix)
	if !ok {
		return ""
	}
	owner, _, ok := strings.Cut(rest, ":")
	if !ok {
		return ""
	}
	return owner
}
