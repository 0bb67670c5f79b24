// Package credential derives and checks the per-user, per-event check-in secret.
//
// A credential is a keyed BLAKE2b-256 digest of the user id and the event's
// secret name, keyed by the server secret. Nothing is stored: verification
// recomputes the digest. Replacing an event's secret name revokes every
// credential issued for that event; replacing the server secret revokes all of them.
package credential

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"hash"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Token is the encoded credential a client presents at check-in.
type Token string

var ErrEmptySecret = errors.New("credential: server secret must not be empty")

type Issuer struct {
	key []byte
}

// NewIssuer keys an issuer with the server secret. Secrets longer than a
// BLAKE2b key are compressed first.
func NewIssuer(serverSecret []byte) (*Issuer, error) {
	if len(serverSecret) == 0 {
		return nil, ErrEmptySecret
	}
	key := append([]byte(nil), serverSecret...)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}
	return &Issuer{key: key}, nil
}

func (i *Issuer) mac() hash.Hash {
	h, err := blake2b.New256(i.key)
	if err != nil {
		// key length is bounded in NewIssuer
		panic(err)
	}
	return h
}

// Issue returns the credential for userID at the event identified by eventSecretName.
func (i *Issuer) Issue(userID uuid.UUID, eventSecretName string) Token {
	h := i.mac()
	h.Write(userID[:])
	// length prefix keeps (user, name) pairs unambiguous
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(eventSecretName)))
	h.Write(n[:])
	h.Write([]byte(eventSecretName))
	return Token(base64.RawURLEncoding.EncodeToString(h.Sum(nil)))
}

// Verify recomputes the credential and compares in constant time.
func (i *Issuer) Verify(candidate string, userID uuid.UUID, eventSecretName string) bool {
	expected := i.Issue(userID, eventSecretName)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(expected)) == 1
}

// Fingerprint identifies the server secret in logs without disclosing it, so a
// rotation shows up as a changed fingerprint.
func (i *Issuer) Fingerprint() string {
	sum := blake2b.Sum256(append([]byte("credential-fingerprint:"), i.key...))
	return hex.EncodeToString(sum[:6])
}

// Issue is the functional form of Issuer.Issue.
func Issue(userID uuid.UUID, serverSecret []byte, eventSecretName string) (Token, error) {
	i, err := NewIssuer(serverSecret)
	if err != nil {
		return "", err
	}
	return i.Issue(userID, eventSecretName), nil
}

// Verify is the functional form of Issuer.Verify. An empty server secret never verifies.
func Verify(candidate string, userID uuid.UUID, serverSecret []byte, eventSecretName string) bool {
	i, err := NewIssuer(serverSecret)
	if err != nil {
		return false
	}
	return i.Verify(candidate, userID, eventSecretName)
}
