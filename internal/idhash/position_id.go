// Package idhash computes deterministic identifiers so that re-running a
// pipeline over the same inputs produces the same records, making
// persistence idempotent.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputePositionID computes a deterministic closed-position ID using SHA256.
// Formula: SHA256(account_id|symbol|book|closing_execution_id|close_time)
// Returns hex-encoded hash (64 characters).
//
// A single trade closes at most one book, so the closing execution ID is
// unique per closure within an account.
func ComputePositionID(
	accountID string,
	symbol string,
	book string,
	closingExecutionID string,
	closeTimeMs int64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%d",
		accountID,
		symbol,
		book,
		closingExecutionID,
		closeTimeMs,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
