package fingerprint

import (
	"crypto/md5" // #nosec G501 - dedup key, not a security boundary
	"encoding/hex"
	"fmt"
	"io"
)

// Derive computes the stable fingerprint for a message observed on any
// ingestion channel: a 128-bit digest over (sender, body, receivedAt),
// rendered as 32 hex characters. All channels seeing the same physical SMS
// must derive the same value, so absent fields are folded in as empty
// strings rather than skipped.
func Derive(sender, body string, receivedAtMillis int64) string {
	h := md5.New() // #nosec G401
	if _, err := io.WriteString(h, fmt.Sprintf("%s|%s|%d", sender, body, receivedAtMillis)); err != nil {
		// Hashing must never drop a message; fall back to the raw tuple,
		// which is equally deterministic.
		return fmt.Sprintf("%s|%s|%d", sender, body, receivedAtMillis)
	}
	return hex.EncodeToString(h.Sum(nil))
}
