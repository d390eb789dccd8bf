package storage

import (
	"encoding/hex"
	"path"

	"github.com/ruteri/pdo-contract-client/interfaces"
)

// contentKey is the backend-relative key of a piece of content.
func contentKey(prefix string, id interfaces.ContentID, contentType interfaces.ContentType) string {
	return path.Join(prefix, contentType.String(), hex.EncodeToString(id[:]))
}
