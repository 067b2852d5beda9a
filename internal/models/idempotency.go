package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// OperationResult is the outcome the idempotency tracker stores against
// a completed key. Exactly one of Record or Transfer is set, depending
// on the operation type. Fingerprint is a digest of the request
// parameters; a replay with a different fingerprint is rejected instead
// of returning a result that does not match what was asked for.
type OperationResult struct {
	Fingerprint string             `json:"fingerprint"`
	Record      *TransactionRecord `json:"record,omitempty"`
	Transfer    *TransferResult    `json:"transfer,omitempty"`
}

// OperationFingerprint digests the parameters that make two requests
// "the same operation" for idempotency purposes.
func OperationFingerprint(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}
