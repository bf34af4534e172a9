package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefix for record content hashes. Version suffix enables
// future algorithm migration without ambiguity against old snapshots.
const domainRecord = "normgraph/record/v1"

// hashWithDomain computes SHA-256 with domain separation:
// SHA256(domain + 0x00 + data). The null separator prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// recordHash hashes one slot's canonical value bytes.
func recordHash(valueJSON []byte) string {
	return hashWithDomain(domainRecord, valueJSON)
}
