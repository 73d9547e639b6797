package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/tarancss/chainquery/lib/fault"
	"github.com/tarancss/chainquery/lib/store"
)

// ErrKeysUnavailable is returned for keys that are not configured statically while the external keys have never been
// loaded.
var ErrKeysUnavailable = errors.New("external api keys not loaded yet")

// KeyStore is the Oracle holding the configured keys and those loaded from external sources. Only key hashes are
// kept.
type KeyStore struct {
	static   mapset.Set[string]
	sources  []store.KeySource
	external atomic.Pointer[mapset.Set[string]]
	log      *slog.Logger
}

var _ Oracle = (*KeyStore)(nil)

func hash(key string) string {
	sum := sha256.Sum256([]byte(key))

	return hex.EncodeToString(sum[:])
}

// Fingerprint identifies key in logs and usage events without revealing it.
func Fingerprint(key string) string {
	if key == "" {
		return ""
	}

	return hash(key)[:16]
}

// NewKeyStore returns a key store accepting the static keys and, once loaded, the keys of sources.
func NewKeyStore(static []string, sources []store.KeySource, log *slog.Logger) *KeyStore {
	if log == nil {
		log = slog.Default()
	}

	ks := &KeyStore{static: mapset.NewThreadUnsafeSet[string](), sources: sources, log: log}

	for _, k := range static {
		if k != "" {
			ks.static.Add(hash(k))
		}
	}

	return ks
}

// Valid implements Oracle.
func (ks *KeyStore) Valid(ctx context.Context, key string) (bool, error) {
	h := hash(key)
	if ks.static.Contains(h) {
		return true, nil
	}

	if len(ks.sources) == 0 {
		return false, nil
	}

	ext := ks.external.Load()
	if ext == nil {
		return false, ErrKeysUnavailable
	}

	return (*ext).Contains(h), nil
}

// Refresh reloads the keys of every source and replaces the external keys at once. When any source fails the
// previous keys are kept.
func (ks *KeyStore) Refresh(ctx context.Context) error {
	if len(ks.sources) == 0 {
		return nil
	}

	keys := mapset.NewThreadUnsafeSet[string]()

	for i, src := range ks.sources {
		loaded, err := src.APIKeys(ctx)
		if err != nil {
			return fault.New(fault.Authentication, "refresh api keys", fmt.Sprintf("source %d", i), err)
		}

		for _, k := range loaded {
			if k != "" {
				keys.Add(hash(k))
			}
		}
	}

	ks.external.Store(&keys)
	ks.log.Debug("API keys refreshed", slog.Int("keys", keys.Cardinality()))

	return nil
}

// Run refreshes the keys every interval until ctx is done.
func (ks *KeyStore) Run(ctx context.Context, interval time.Duration) {
	if len(ks.sources) == 0 || interval <= 0 {
		return
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := ks.Refresh(ctx); err != nil {
				ks.log.Warn("API keys refresh failed, keeping previous keys", slog.Any("error", err))
			}
		}
	}
}
