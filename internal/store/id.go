package store

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// remoteSessionIDPrefix namespaces session ids on the backend.
const remoteSessionIDPrefix = "ws_"

// RemoteSessionID derives the stable backend session id for a workspace.
// The raw workspace path never leaves the host; the same workspace always
// maps to the same id across invocations and machines.
func RemoteSessionID(workspaceID string) string {
	sum := blake3.Sum256([]byte("hooktrace/session\x00" + workspaceID))
	return remoteSessionIDPrefix + hex.EncodeToString(sum[:16])
}
