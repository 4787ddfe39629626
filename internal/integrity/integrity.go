// Package integrity provides tamper-evident hashing for prompt event logs.
// All functions are pure and deterministic.
//
// Each event's content hash covers its identifying fields plus the previous
// event's hash, forming a chain: editing, reordering, or truncating any part
// of a persisted log breaks every hash after the tampered point.
package integrity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"

	"github.com/google/uuid"

	"github.com/reprise-ai/reprise/internal/model"
)

// EventHash produces a SHA-256 hex digest over the event's canonical fields
// and the previous event's hash. Fields are length-prefixed (4-byte big-endian
// length then bytes) so freeform text can never collide across field
// boundaries. The first event in a chain uses an empty prevHash.
func EventHash(promptID uuid.UUID, seq int64, kind model.EventKind, text string, targetSeq *int64, prevHash string) string {
	h := sha256.New()
	writeField := func(s string) {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s))) //nolint:gosec // field lengths are bounded by request body limits
		h.Write(lenBuf[:])
		h.Write([]byte(s))
	}
	writeField(promptID.String())
	writeField(strconv.FormatInt(seq, 10))
	writeField(string(kind))
	writeField(text)
	if targetSeq != nil {
		writeField(strconv.FormatInt(*targetSeq, 10))
	} else {
		writeField("")
	}
	writeField(prevHash)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyChain re-derives the hash chain over events (ascending Seq order) and
// reports the first Seq whose stored hash does not match, if any. The second
// return is the expected head hash of the verified prefix.
func VerifyChain(events []model.Event) (brokenSeq *int64, headHash string) {
	prev := ""
	for _, e := range events {
		want := EventHash(e.PromptID, e.Seq, e.Kind, e.Text, e.TargetSeq, prev)
		if e.PrevHash != prev || e.ContentHash != want {
			seq := e.Seq
			return &seq, headHash
		}
		prev = want
		headHash = want
	}
	return nil, headHash
}
