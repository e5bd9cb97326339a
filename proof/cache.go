package proof

import (
	"crypto/sha256"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var verifications = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "proof_verifications_total",
	Help: "Proof verifications by result (valid, invalid, cached).",
}, []string{"result"})

type cacheKey struct {
	seal    Digest
	imageID Digest
	digest  Digest
}

// CachedVerifier remembers successful verifications so that a seal that is
// resubmitted (for example after a failed stake transfer) is not re-checked.
// Failures are never cached.
type CachedVerifier struct {
	inner Verifier
	seen  *lru.Cache[cacheKey, struct{}]
}

// NewCachedVerifier wraps inner with an LRU of the given size.
func NewCachedVerifier(inner Verifier, size int) (*CachedVerifier, error) {
	c, err := lru.New[cacheKey, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("proof: cache: %w", err)
	}
	return &CachedVerifier{inner: inner, seen: c}, nil
}

// Verify implements Verifier.
func (c *CachedVerifier) Verify(seal []byte, imageID, journalDigest Digest) error {
	key := cacheKey{seal: sha256.Sum256(seal), imageID: imageID, digest: journalDigest}
	if c.seen.Contains(key) {
		verifications.WithLabelValues("cached").Inc()
		return nil
	}
	if err := c.inner.Verify(seal, imageID, journalDigest); err != nil {
		verifications.WithLabelValues("invalid").Inc()
		return err
	}
	verifications.WithLabelValues("valid").Inc()
	c.seen.Add(key, struct{}{})
	return nil
}

// Len returns the number of cached verifications.
func (c *CachedVerifier) Len() int {
	return c.seen.Len()
}
