package sqlite

import (
	"strings"

	"github.com/google/uuid"
)

// newID generates an opaque id in the "<prefix>-<hex10>" shape the original
// implementation uses (uuid4().hex[:10]).
func newID(prefix string) string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return prefix + "-" + hex[:10]
}
