package token

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/authbridge/authbridge/pkg/backend"
	"github.com/authbridge/authbridge/pkg/errdefs"
	"github.com/authbridge/authbridge/pkg/log"
	"github.com/authbridge/authbridge/pkg/metrics"
	"github.com/authbridge/authbridge/pkg/security"
)

const rsaKeyBits = 2048

// KeyPair is one ring entry: an RSA keypair addressed by kid
type KeyPair struct {
	Kid        string
	Public     *rsa.PublicKey
	Private    *rsa.PrivateKey
	PublicPEM  string
	privatePEM string
}

// ringEntry is the persisted form of a KeyPair. The private PEM is encrypted
// and base64-encoded; the public PEM is stored in the clear.
type ringEntry struct {
	Kid           string `json:"kid"`
	PublicPEM     string `json:"public_pem"`
	PrivatePEMEnc string `json:"private_pem_enc"`
}

// Ring holds the process's RSA keypair set. Exactly one kid is current and
// signs new tokens; every kid in the ring verifies. Kids are time-ordered
// UUIDs, so the lexicographically largest kid is always the newest, which
// makes the current-kid choice deterministic across processes.
type Ring struct {
	backend *backend.Adapter
	cipher  *security.Cipher
	logger  zerolog.Logger

	mu         sync.RWMutex
	keys       map[string]*KeyPair
	currentKid string
}

// NewRing creates an empty ring over the backend adapter
func NewRing(b *backend.Adapter, cipher *security.Cipher) *Ring {
	return &Ring{
		backend: b,
		cipher:  cipher,
		logger:  log.WithComponent("keyring"),
		keys:    make(map[string]*KeyPair),
	}
}

// Load populates the ring from the backend. With the backend down an empty
// ring gets one ephemeral keypair so minting keeps working; a populated ring
// is kept as-is. A legacy single keypair is migrated into ring form.
func (r *Ring) Load(ctx context.Context) error {
	if !r.backend.Available(ctx) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if len(r.keys) > 0 {
			return nil
		}
		pair, err := generatePair()
		if err != nil {
			return err
		}
		r.keys[pair.Kid] = pair
		r.currentKid = pair.Kid
		r.logger.Warn().Str("kid", pair.Kid).Msg("backend unavailable, using ephemeral signing key")
		return nil
	}

	if blob := r.backend.GetKeyRing(ctx); blob != nil {
		keys, err := r.decode(blob)
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.keys = keys
		r.currentKid = newestKid(keys)
		r.mu.Unlock()
		r.logger.Info().Int("keys", len(keys)).Str("current", r.CurrentKid()).Msg("key ring loaded")
		return nil
	}

	// No ring yet; fold in the legacy single keypair when one exists
	if pubPEM, privPEM, ok := r.backend.GetLegacyRSA(ctx); ok {
		pair, err := pairFromPEM(pubPEM, privPEM)
		if err == nil {
			r.mu.Lock()
			r.keys = map[string]*KeyPair{pair.Kid: pair}
			r.currentKid = pair.Kid
			r.mu.Unlock()
			if err := r.persist(ctx); err != nil {
				return err
			}
			r.logger.Info().Str("kid", pair.Kid).Msg("migrated legacy keypair into key ring")
			return nil
		}
		r.logger.Warn().Err(err).Msg("legacy keypair unreadable, generating fresh ring")
	}

	pair, err := generatePair()
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.keys = map[string]*KeyPair{pair.Kid: pair}
	r.currentKid = pair.Kid
	r.mu.Unlock()
	if err := r.persist(ctx); err != nil {
		return err
	}
	r.logger.Info().Str("kid", pair.Kid).Msg("key ring initialized")
	return nil
}

// Rotate adds a fresh keypair, marks it current and persists the ring. Prior
// kids stay in the ring and keep verifying.
func (r *Ring) Rotate(ctx context.Context) (newKid string, err error) {
	pair, err := generatePair()
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.keys[pair.Kid] = pair
	r.currentKid = pair.Kid
	r.mu.Unlock()

	if err := r.persist(ctx); err != nil {
		return "", err
	}
	metrics.KeyRotations.Inc()
	r.logger.Info().Str("kid", pair.Kid).Msg("key ring rotated")
	return pair.Kid, nil
}

// Current returns the signing keypair, or nil when the ring is empty
func (r *Ring) Current() *KeyPair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.keys[r.currentKid]
}

// CurrentKid returns the signing kid, or "" when the ring is empty
func (r *Ring) CurrentKid() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentKid
}

// Get returns the keypair for a kid
func (r *Ring) Get(kid string) (*KeyPair, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pair, ok := r.keys[kid]
	return pair, ok
}

// Size returns the number of keys in the ring
func (r *Ring) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys)
}

// Pairs returns the ring entries sorted by kid
func (r *Ring) Pairs() []*KeyPair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*KeyPair, 0, len(r.keys))
	for _, pair := range r.keys {
		out = append(out, pair)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kid < out[j].Kid })
	return out
}

// persist serializes the ring and writes it to the backend
func (r *Ring) persist(ctx context.Context) error {
	r.mu.RLock()
	entries := make([]ringEntry, 0, len(r.keys))
	for _, pair := range r.keys {
		enc, err := r.cipher.Encrypt([]byte(pair.privatePEM))
		if err != nil {
			r.mu.RUnlock()
			return fmt.Errorf("failed to encrypt private key [%s]: %w", pair.Kid, err)
		}
		entries = append(entries, ringEntry{
			Kid:           pair.Kid,
			PublicPEM:     pair.PublicPEM,
			PrivatePEMEnc: base64.StdEncoding.EncodeToString(enc),
		})
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Kid < entries[j].Kid })
	blob, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to serialize key ring: %w", err)
	}
	return r.backend.SaveKeyRing(ctx, blob)
}

// decode deserializes a persisted ring blob
func (r *Ring) decode(blob []byte) (map[string]*KeyPair, error) {
	var entries []ringEntry
	if err := json.Unmarshal(blob, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse key ring: %w", err)
	}
	keys := make(map[string]*KeyPair, len(entries))
	for _, e := range entries {
		enc, err := base64.StdEncoding.DecodeString(e.PrivatePEMEnc)
		if err != nil {
			return nil, fmt.Errorf("failed to decode private key [%s]: %w", e.Kid, err)
		}
		privPEM, err := r.cipher.Decrypt(enc)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt private key [%s]: %w", e.Kid, err)
		}
		pair, err := parsePair(e.Kid, e.PublicPEM, string(privPEM))
		if err != nil {
			return nil, err
		}
		keys[e.Kid] = pair
	}
	if len(keys) == 0 {
		return nil, errdefs.New(errdefs.CodeKeysUnavailable, "persisted key ring is empty")
	}
	return keys, nil
}

func newestKid(keys map[string]*KeyPair) string {
	var newest string
	for kid := range keys {
		if kid > newest {
			newest = kid
		}
	}
	return newest
}

// newKid returns a time-ordered UUID so later kids sort after earlier ones
func newKid() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate kid: %w", err)
	}
	return id.String(), nil
}

func generatePair() (*KeyPair, error) {
	kid, err := newKid()
	if err != nil {
		return nil, err
	}
	priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA keypair: %w", err)
	}

	privPEM := string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	}))
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}
	pubPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))

	return &KeyPair{
		Kid:        kid,
		Public:     &priv.PublicKey,
		Private:    priv,
		PublicPEM:  pubPEM,
		privatePEM: privPEM,
	}, nil
}

// pairFromPEM wraps an existing keypair in a fresh kid
func pairFromPEM(pubPEM, privPEM string) (*KeyPair, error) {
	kid, err := newKid()
	if err != nil {
		return nil, err
	}
	return parsePair(kid, pubPEM, privPEM)
}

func parsePair(kid, pubPEM, privPEM string) (*KeyPair, error) {
	privBlock, _ := pem.Decode([]byte(privPEM))
	if privBlock == nil {
		return nil, fmt.Errorf("no PEM block in private key [%s]", kid)
	}
	priv, err := x509.ParsePKCS1PrivateKey(privBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key [%s]: %w", kid, err)
	}

	pubBlock, _ := pem.Decode([]byte(pubPEM))
	if pubBlock == nil {
		return nil, fmt.Errorf("no PEM block in public key [%s]", kid)
	}
	pubAny, err := x509.ParsePKIXPublicKey(pubBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key [%s]: %w", kid, err)
	}
	pub, ok := pubAny.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key [%s] is not RSA", kid)
	}

	return &KeyPair{
		Kid:        kid,
		Public:     pub,
		Private:    priv,
		PublicPEM:  pubPEM,
		privatePEM: privPEM,
	}, nil
}
