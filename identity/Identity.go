/*
File Name:  Identity.go

An optional integrity/provenance layer over a crawl's output: an
ECDSA (secp256k1) keypair identifies the operator that ran a crawl,
and a BLAKE3 fingerprint of the exported batch lets a downstream
consumer verify that a JSON export was not tampered with in transit.
This is not part of the core crawl engine (spec.md treats persistence
and presentation as external collaborators); it is a supplement
wired from cmd/crawld, grounded on the teacher's own peer-identity and
hashing conventions (Peer ID.go, protocol/Hash.go).
*/

package identity

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"lukechampine.com/blake3"
)

// Identity is an operator's secp256k1 keypair used to sign crawl batches.
type Identity struct {
	PrivateKey *btcec.PrivateKey
	PublicKey  *btcec.PublicKey
}

// Generate creates a new random identity.
func Generate() (Identity, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return Identity{}, fmt.Errorf("identity: generate key: %w", err)
	}
	return Identity{PrivateKey: key, PublicKey: key.PubKey()}, nil
}

// LoadOrCreate reads a hex-encoded private key from filename, creating
// and persisting a new one if the file does not exist. This mirrors
// the teacher's "PrivateKey... hex encoded so it can be copied
// manually" config convention.
func LoadOrCreate(filename string) (Identity, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if !os.IsNotExist(err) {
			return Identity{}, fmt.Errorf("identity: read %s: %w", filename, err)
		}
		id, err := Generate()
		if err != nil {
			return Identity{}, err
		}
		if err := os.WriteFile(filename, []byte(id.HexPrivateKey()), 0600); err != nil {
			return Identity{}, fmt.Errorf("identity: write %s: %w", filename, err)
		}
		return id, nil
	}

	keyBytes, err := hex.DecodeString(string(data))
	if err != nil {
		return Identity{}, fmt.Errorf("identity: decode %s: %w", filename, err)
	}
	key, pub := btcec.PrivKeyFromBytes(keyBytes)
	return Identity{PrivateKey: key, PublicKey: pub}, nil
}

// HexPrivateKey returns the identity's private key, hex encoded.
func (id Identity) HexPrivateKey() string {
	return hex.EncodeToString(id.PrivateKey.Serialize())
}

// Fingerprint returns the BLAKE3 digest of data, used as the batch
// fingerprint that gets signed.
func Fingerprint(data []byte) []byte {
	sum := blake3.Sum256(data)
	return sum[:]
}

// Sign signs a fingerprint (as produced by Fingerprint) and returns a
// compact ECDSA signature.
func (id Identity) Sign(fingerprint []byte) []byte {
	sig := ecdsa.SignCompact(id.PrivateKey, fingerprint, true)
	return sig
}

// Verify checks a compact signature over a fingerprint against a
// serialized compressed public key.
func Verify(fingerprint, signature, publicKey []byte) (bool, error) {
	pub, err := btcec.ParsePubKey(publicKey)
	if err != nil {
		return false, fmt.Errorf("identity: parse public key: %w", err)
	}

	recoveredPub, _, err := ecdsa.RecoverCompact(signature, fingerprint)
	if err != nil {
		return false, nil
	}
	return recoveredPub.IsEqual(pub), nil
}
