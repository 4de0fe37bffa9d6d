package nostr

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/Hakkadaikon/nostr-front-sub000/internal/types"
)

// Signer finalizes an unsigned event: fills in pubkey, id and sig.
// Key generation and storage stay outside this module; implementations may
// hold a local key or proxy to a remote signer.
type Signer interface {
	PubKey() string
	Sign(evt *types.Event) error
}

// LocalSigner signs events with an in-memory secp256k1 key.
type LocalSigner struct {
	privKey *btcec.PrivateKey
	pubKey  string
}

// NewLocalSigner builds a signer from a 64-char hex secret key.
func NewLocalSigner(secKeyHex string) (*LocalSigner, error) {
	keyBytes, err := hex.DecodeString(secKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid secret key hex: %w", err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("secret key must be 32 bytes, got %d", len(keyBytes))
	}

	privKey, pubKey := btcec.PrivKeyFromBytes(keyBytes)
	return &LocalSigner{
		privKey: privKey,
		pubKey:  hex.EncodeToString(schnorr.SerializePubKey(pubKey)),
	}, nil
}

// PubKey returns the x-only public key in hex.
func (s *LocalSigner) PubKey() string {
	return s.pubKey
}

// Sign sets PubKey, computes the canonical event ID and signs it.
func (s *LocalSigner) Sign(evt *types.Event) error {
	evt.PubKey = s.pubKey
	evt.ID = ComputeEventID(evt)

	idBytes, err := hex.DecodeString(evt.ID)
	if err != nil {
		return fmt.Errorf("decoding event id: %w", err)
	}

	sig, err := schnorr.Sign(s.privKey, idBytes)
	if err != nil {
		return fmt.Errorf("signing event: %w", err)
	}

	evt.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}
