package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignaturePrefix is the scheme tag GitHub prepends to the hex digest in
// the X-Hub-Signature-256 header.
const SignaturePrefix = "sha256="

// VerifySignature reports whether signature is a valid HMAC-SHA256 of
// payload under secret, in GitHub's "sha256=<hex>" header format. An
// absent or malformed signature is rejected. The comparison is
// constant-time.
func VerifySignature(payload []byte, signature, secret string) bool {
	if !strings.HasPrefix(signature, SignaturePrefix) {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}
