package license

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/cspline/activationsrv/internal/common/apperrors"
	"github.com/rs/zerolog/log"
)

// Signer holds the RSA private key used to sign license payloads. It is
// constructed once at startup and injected wherever tokens are issued; there
// is no ambient global key. A Signer is safe for concurrent use — signing is
// stateless apart from the read-only key material.
type Signer struct {
	priv    *rsa.PrivateKey
	devMode bool
}

// pssOptions selects maximum-length salt, matching the PSS configuration the
// client verifier was built against.
var pssOptions = &rsa.PSSOptions{
	SaltLength: rsa.PSSSaltLengthAuto,
	Hash:       crypto.SHA256,
}

// minKeyBits rejects keys weaker than RSA-2048.
const minKeyBits = 2048

// SignerOptions configures signer construction.
type SignerOptions struct {
	// PrivateKeyPEM is the PEM-encoded RSA private key. Takes precedence
	// over PrivateKeyFile. Usually sourced from the RSA_PRIVATE_KEY env var.
	PrivateKeyPEM []byte
	// PrivateKeyFile is a path to a PEM-encoded RSA private key.
	PrivateKeyFile string
	// DevMode permits generating an ephemeral keypair when no key is
	// configured. Tokens signed by a dev key verify only against the printed
	// public key and must never be treated as authoritative.
	DevMode bool
}

// NewSigner constructs a Signer from the given options. If no key material is
// available and DevMode is off, it returns ErrSigningUnavailable — the server
// must refuse to start rather than silently operate unsigned.
func NewSigner(opts SignerOptions) (*Signer, apperrors.Error) {
	pemBytes := opts.PrivateKeyPEM
	if len(pemBytes) == 0 && opts.PrivateKeyFile != "" {
		b, err := os.ReadFile(opts.PrivateKeyFile)
		if err != nil {
			return nil, ErrInvalidKeyMaterial.MsgErr(
				fmt.Sprintf("unable to read signing key file %s", opts.PrivateKeyFile), err)
		}
		pemBytes = b
	}

	if len(pemBytes) > 0 {
		priv, err := parseRSAPrivateKeyPEM(pemBytes)
		if err != nil {
			return nil, ErrInvalidKeyMaterial.Err(err)
		}
		if priv.N.BitLen() < minKeyBits {
			return nil, ErrInvalidKeyMaterial.Msg(
				fmt.Sprintf("signing key is %d bits, need at least %d", priv.N.BitLen(), minKeyBits))
		}
		return &Signer{priv: priv}, nil
	}

	if !opts.DevMode {
		return nil, ErrSigningUnavailable.Msg("no signing key configured")
	}

	// Development fallback: ephemeral keypair, never persisted. The public
	// key is printed so a dev client can be pointed at it.
	priv, err := rsa.GenerateKey(rand.Reader, minKeyBits)
	if err != nil {
		return nil, ErrSigningUnavailable.MsgErr("unable to generate development signing key", err)
	}
	pubPEM, err := publicKeyPEM(&priv.PublicKey)
	if err == nil {
		log.Warn().
			Str("public_key", string(pubPEM)).
			Msg("no signing key configured, generated ephemeral DEVELOPMENT keypair; tokens are not authoritative")
	}
	return &Signer{priv: priv, devMode: true}, nil
}

// DevMode reports whether the signer is using an ephemeral development key.
func (s *Signer) DevMode() bool {
	return s.devMode
}

// PublicKey returns the verification key for the signer.
func (s *Signer) PublicKey() *rsa.PublicKey {
	if s == nil || s.priv == nil {
		return nil
	}
	return &s.priv.PublicKey
}

// Sign produces an RSA-PSS (SHA-256) signature over data. A signer with no
// key refuses to sign rather than degrade to an unsigned token.
func (s *Signer) Sign(data []byte) ([]byte, apperrors.Error) {
	if s == nil || s.priv == nil {
		return nil, ErrSigningUnavailable
	}
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPSS(rand.Reader, s.priv, crypto.SHA256, digest[:], pssOptions)
	if err != nil {
		return nil, ErrSigningUnavailable.Err(err)
	}
	return sig, nil
}

// Verify checks an RSA-PSS signature over data. The server never verifies in
// the request path; this is the client-side contract and is exercised by
// tests to prove issued tokens are verifiable.
func Verify(pub *rsa.PublicKey, data, sig []byte) error {
	if pub == nil {
		return fmt.Errorf("no public key")
	}
	digest := sha256.Sum256(data)
	return rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, pssOptions)
}

// IssueToken canonicalizes the payload, signs it, and assembles the token
// returned to the client.
func (s *Signer) IssueToken(p Payload) (*Token, apperrors.Error) {
	data, err := CanonicalEncode(p)
	if err != nil {
		return nil, ErrEncodePayload.Err(err)
	}
	sig, serr := s.Sign(data)
	if serr != nil {
		return nil, serr
	}
	return &Token{
		Payload: p,
		Sig:     base64.StdEncoding.EncodeToString(sig),
	}, nil
}

// parseRSAPrivateKeyPEM accepts both PKCS#1 ("RSA PRIVATE KEY") and PKCS#8
// ("PRIVATE KEY") encodings.
func parseRSAPrivateKeyPEM(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in signing key material")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("unable to parse signing key: %w", err)
	}
	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signing key is not an RSA key")
	}
	return priv, nil
}

// publicKeyPEM renders a public key as SubjectPublicKeyInfo PEM.
func publicKeyPEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}
