/*
File Name:  Batch.go

The signed-export envelope: a crawl's output records plus a BLAKE3
fingerprint of their canonical JSON encoding and an ECDSA signature
over that fingerprint, so a downstream consumer can verify a batch
was produced by a given operator and not altered in transit. Grounded
on the teacher's own peer-identity/signing conventions alongside
Identity.go.
*/

package identity

import (
	"encoding/json"
	"fmt"
	"time"

	core "github.com/bitcrawl/core"
)

// Batch is a signed, exportable snapshot of a crawl's output.
type Batch struct {
	Records         []core.PeerRecord `json:"records"`
	Fingerprint     []byte            `json:"fingerprint"`
	Signature       []byte            `json:"signature"`
	SignerPublicKey []byte            `json:"signer_public_key"`
	GeneratedAt     time.Time         `json:"generated_at"`
}

// NewBatch builds a Batch from records, fingerprinting the canonical
// JSON encoding of records (not any other byte representation) and
// signing that fingerprint with id.
func NewBatch(id Identity, records []core.PeerRecord) (Batch, error) {
	canonical, err := json.Marshal(records)
	if err != nil {
		return Batch{}, fmt.Errorf("identity: encode records: %w", err)
	}

	fingerprint := Fingerprint(canonical)
	return Batch{
		Records:         records,
		Fingerprint:     fingerprint,
		Signature:       id.Sign(fingerprint),
		SignerPublicKey: id.PublicKey.SerializeCompressed(),
		GeneratedAt:     time.Now(),
	}, nil
}

// Verify checks that b.Signature is a valid signature by
// b.SignerPublicKey over the BLAKE3 fingerprint of the canonical JSON
// encoding of b.Records, i.e. that the batch has not been altered and
// was produced by the claimed operator.
func (b Batch) Verify() (bool, error) {
	canonical, err := json.Marshal(b.Records)
	if err != nil {
		return false, fmt.Errorf("identity: encode records: %w", err)
	}

	if string(Fingerprint(canonical)) != string(b.Fingerprint) {
		return false, nil
	}

	return Verify(b.Fingerprint, b.Signature, b.SignerPublicKey)
}
