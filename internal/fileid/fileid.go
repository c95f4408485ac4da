// Package fileid derives stable identifiers for files picked up from watched directories, so
// re-ingesting a path overwrites its previous records instead of duplicating them.
package fileid

import (
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

// namespace scopes the name-based UUIDs to this application.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("medsage:source"))

// SourceID returns a stable UUID for the given path. Same cleaned path always yields the same ID.
func SourceID(absolutePath string) string {
	return uuid.NewSHA1(namespace, []byte(filepath.Clean(absolutePath))).String()
}

// ChunkID returns the record ID of chunk i of the source identified by sourceID.
// sourceID must be a UUID as returned by SourceID.
func ChunkID(sourceID string, i int) string {
	parent, err := uuid.Parse(sourceID)
	if err != nil {
		parent = uuid.NewSHA1(namespace, []byte(sourceID))
	}
	return uuid.NewSHA1(parent, []byte(strconv.Itoa(i))).String()
}
