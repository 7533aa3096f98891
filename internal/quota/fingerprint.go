package quota

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// Fingerprint derives the client identity for a request: a SHA-256 hex
// digest of the forwarded client address and the declared user agent.
// Two requests with the same address and agent always map to the same
// fingerprint; there are no cookies or tokens involved.
func Fingerprint(r *http.Request) string {
	addr := clientAddr(r)
	agent := r.Header.Get("User-Agent")

	sum := sha256.Sum256([]byte(addr + agent))
	return hex.EncodeToString(sum[:])
}

// clientAddr picks the forwarded client address, preferring the first
// hop of X-Forwarded-For over the socket address.
func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}

	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}

	return "unknown"
}
