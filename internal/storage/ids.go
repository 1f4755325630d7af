package storage

import (
	"strings"

	"github.com/google/uuid"
)

// RecordID derives a stable identifier for a programme from its source URL,
// so repeated runs update the same row or document.
func RecordID(sourceURL string) string {
	key := strings.TrimRight(strings.TrimSpace(sourceURL), "/")
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

// NewRunID returns a fresh identifier for one scraping run.
func NewRunID() string {
	return uuid.NewString()
}
