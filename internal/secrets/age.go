// Package secrets implements the secrets engine: X25519 public-key
// encryption of managed secret plaintexts into ciphertext sidecars.
//
// The wire format here is hometree's own, not the upstream age file format:
// the envelope is a plain text header followed by a base64 payload, built
// directly on golang.org/x/crypto's curve25519, chacha20poly1305 and hkdf
// primitives. The construction mirrors age's: a random per-file content
// key wrapped once per recipient via ECDH+HKDF, the payload itself sealed
// under that content key.
package secrets

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/hometree/hometree/internal/errs"
)

const (
	envelopeMagic = "hometree-encrypted-v1"
	hkdfInfo      = "hometree secret wrap"
)

// GenerateIdentity creates a new X25519 keypair, returning hex-encoded
// private and public keys.
func GenerateIdentity() (priv, pub string, err error) {
	var sk [32]byte
	if _, err := io.ReadFull(rand.Reader, sk[:]); err != nil {
		return "", "", fmt.Errorf("generating identity: %w", err)
	}
	// Clamp per RFC 7748 so the scalar is a valid X25519 private key.
	sk[0] &= 248
	sk[31] &= 127
	sk[31] |= 64

	pk, err := curve25519.X25519(sk[:], curve25519.Basepoint)
	if err != nil {
		return "", "", fmt.Errorf("deriving public key: %w", err)
	}
	return hex.EncodeToString(sk[:]), hex.EncodeToString(pk), nil
}

// ParseRecipients decodes a list of hex-encoded X25519 public keys.
func ParseRecipients(recipients []string) ([][32]byte, error) {
	if len(recipients) == 0 {
		return nil, errs.New(errs.KindNoRecipients, "no recipients configured")
	}
	out := make([][32]byte, 0, len(recipients))
	for _, r := range recipients {
		pk, err := decodeKey(r)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient %q: %w", r, err)
		}
		out = append(out, pk)
	}
	return out, nil
}

// ParseIdentities decodes the concatenated contents of one or more identity
// files: one hex-encoded private key per non-blank, non-comment line.
func ParseIdentities(contents [][]byte) ([][32]byte, error) {
	var out [][32]byte
	for _, c := range contents {
		scanner := bufio.NewScanner(bytes.NewReader(c))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			sk, err := decodeKey(line)
			if err != nil {
				return nil, fmt.Errorf("parsing identity: %w", err)
			}
			out = append(out, sk)
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}
	if len(out) == 0 {
		return nil, errs.New(errs.KindNoIdentities, "no identities available")
	}
	return out, nil
}

func decodeKey(s string) ([32]byte, error) {
	var k [32]byte
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return k, err
	}
	if len(b) != 32 {
		return k, fmt.Errorf("expected 32-byte key, got %d bytes", len(b))
	}
	copy(k[:], b)
	return k, nil
}

// stanza is one recipient's wrapped copy of the file content key.
type stanza struct {
	recipientPub  [32]byte
	ephemeralPub  [32]byte
	wrappedKey    []byte
	wrapNonce     []byte
}

// Encrypt seals plaintext for every given recipient public key, returning
// the serialized envelope.
func Encrypt(plaintext []byte, recipients [][32]byte) ([]byte, error) {
	if len(recipients) == 0 {
		return nil, errs.New(errs.KindNoRecipients, "no recipients configured")
	}

	var fileKey [32]byte
	if _, err := io.ReadFull(rand.Reader, fileKey[:]); err != nil {
		return nil, fmt.Errorf("generating content key: %w", err)
	}

	stanzas := make([]stanza, 0, len(recipients))
	for _, recipPub := range recipients {
		st, err := wrapKeyForRecipient(fileKey, recipPub)
		if err != nil {
			return nil, err
		}
		stanzas = append(stanzas, st)
	}

	aead, err := chacha20poly1305.New(fileKey[:])
	if err != nil {
		return nil, fmt.Errorf("constructing payload cipher: %w", err)
	}
	payloadNonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, payloadNonce); err != nil {
		return nil, fmt.Errorf("generating payload nonce: %w", err)
	}
	ciphertext := aead.Seal(nil, payloadNonce, plaintext, nil)

	return serializeEnvelope(stanzas, payloadNonce, ciphertext), nil
}

// Decrypt opens an envelope produced by Encrypt using any matching identity.
func Decrypt(envelope []byte, identities [][32]byte) ([]byte, error) {
	if len(identities) == 0 {
		return nil, errs.New(errs.KindNoIdentities, "no identities available")
	}
	stanzas, payloadNonce, ciphertext, err := parseEnvelope(envelope)
	if err != nil {
		return nil, errs.Wrap(errs.KindDecryptError, err)
	}

	for _, sk := range identities {
		pk, err := curve25519.X25519(sk[:], curve25519.Basepoint)
		if err != nil {
			continue
		}
		var pkArr [32]byte
		copy(pkArr[:], pk)
		for _, st := range stanzas {
			if st.recipientPub != pkArr {
				continue
			}
			fileKey, err := unwrapKey(st, sk)
			if err != nil {
				continue
			}
			aead, err := chacha20poly1305.New(fileKey[:])
			if err != nil {
				continue
			}
			plaintext, err := aead.Open(nil, payloadNonce, ciphertext, nil)
			if err != nil {
				continue
			}
			return plaintext, nil
		}
	}
	return nil, errs.New(errs.KindDecryptError, "no identity could decrypt this secret")
}

func wrapKeyForRecipient(fileKey [32]byte, recipPub [32]byte) (stanza, error) {
	var ephSK [32]byte
	if _, err := io.ReadFull(rand.Reader, ephSK[:]); err != nil {
		return stanza{}, fmt.Errorf("generating ephemeral key: %w", err)
	}
	ephSK[0] &= 248
	ephSK[31] &= 127
	ephSK[31] |= 64

	ephPub, err := curve25519.X25519(ephSK[:], curve25519.Basepoint)
	if err != nil {
		return stanza{}, fmt.Errorf("deriving ephemeral public key: %w", err)
	}
	shared, err := curve25519.X25519(ephSK[:], recipPub[:])
	if err != nil {
		return stanza{}, fmt.Errorf("computing shared secret: %w", err)
	}

	wrapKey, err := deriveWrapKey(shared, ephPub, recipPub[:])
	if err != nil {
		return stanza{}, err
	}
	aead, err := chacha20poly1305.New(wrapKey)
	if err != nil {
		return stanza{}, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return stanza{}, err
	}
	wrapped := aead.Seal(nil, nonce, fileKey[:], nil)

	var ephPubArr [32]byte
	copy(ephPubArr[:], ephPub)
	return stanza{
		recipientPub: recipPub,
		ephemeralPub: ephPubArr,
		wrappedKey:   wrapped,
		wrapNonce:    nonce,
	}, nil
}

func unwrapKey(st stanza, identitySK [32]byte) ([32]byte, error) {
	var out [32]byte
	shared, err := curve25519.X25519(identitySK[:], st.ephemeralPub[:])
	if err != nil {
		return out, err
	}
	wrapKey, err := deriveWrapKey(shared, st.ephemeralPub[:], st.recipientPub[:])
	if err != nil {
		return out, err
	}
	aead, err := chacha20poly1305.New(wrapKey)
	if err != nil {
		return out, err
	}
	plain, err := aead.Open(nil, st.wrapNonce, st.wrappedKey, nil)
	if err != nil {
		return out, err
	}
	copy(out[:], plain)
	return out, nil
}

func deriveWrapKey(shared, ephPub, recipPub []byte) ([]byte, error) {
	salt := append(append([]byte{}, ephPub...), recipPub...)
	h := hkdf.New(sha256.New, shared, salt, []byte(hkdfInfo))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, fmt.Errorf("deriving wrap key: %w", err)
	}
	return key, nil
}

func serializeEnvelope(stanzas []stanza, payloadNonce, ciphertext []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintln(&b, envelopeMagic)
	for _, st := range stanzas {
		fmt.Fprintf(&b, "recipient %s %s %s %s\n",
			hex.EncodeToString(st.recipientPub[:]),
			hex.EncodeToString(st.ephemeralPub[:]),
			hex.EncodeToString(st.wrappedKey),
			hex.EncodeToString(st.wrapNonce),
		)
	}
	fmt.Fprintf(&b, "payload-nonce %s\n", hex.EncodeToString(payloadNonce))
	fmt.Fprintln(&b, "---")
	enc := base64.StdEncoding.EncodeToString(ciphertext)
	b.WriteString(enc)
	b.WriteByte('\n')
	return b.Bytes()
}

func parseEnvelope(data []byte) ([]stanza, []byte, []byte, error) {
	sep := []byte("\n---\n")
	idx := bytes.Index(data, sep)
	if idx < 0 {
		return nil, nil, nil, fmt.Errorf("missing payload separator")
	}
	header, payload := data[:idx], data[idx+len(sep):]

	scanner := bufio.NewScanner(bytes.NewReader(header))
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	if !scanner.Scan() {
		return nil, nil, nil, fmt.Errorf("empty envelope")
	}
	if strings.TrimSpace(scanner.Text()) != envelopeMagic {
		return nil, nil, nil, fmt.Errorf("unrecognized envelope header")
	}

	var stanzas []stanza
	var payloadNonce []byte
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch {
		case len(fields) == 5 && fields[0] == "recipient":
			recip, err1 := decodeKey(fields[1])
			eph, err2 := decodeKey(fields[2])
			wrapped, err3 := hex.DecodeString(fields[3])
			nonce, err4 := hex.DecodeString(fields[4])
			if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
				return nil, nil, nil, fmt.Errorf("malformed recipient stanza: %q", line)
			}
			stanzas = append(stanzas, stanza{recipientPub: recip, ephemeralPub: eph, wrappedKey: wrapped, wrapNonce: nonce})
		case len(fields) == 2 && fields[0] == "payload-nonce":
			n, err := hex.DecodeString(fields[1])
			if err != nil {
				return nil, nil, nil, fmt.Errorf("malformed payload-nonce: %q", line)
			}
			payloadNonce = n
		default:
			return nil, nil, nil, fmt.Errorf("unrecognized envelope line: %q", line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, nil, err
	}
	if payloadNonce == nil {
		return nil, nil, nil, fmt.Errorf("envelope missing payload-nonce")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(payload)))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decoding payload: %w", err)
	}
	return stanzas, payloadNonce, ciphertext, nil
}
