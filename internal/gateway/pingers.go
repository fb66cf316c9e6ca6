package gateway

import (
	"context"
	"fmt"
)

// healthChecker is the reachability surface shared by the Qdrant store and
// similar dependencies.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// QdrantPinger probes the similarity store using its native health check RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// store is the similarity store to probe.
	store healthChecker
}

// NewQdrantPinger constructs a QdrantPinger for the given store.
func NewQdrantPinger(store healthChecker) *QdrantPinger {
	return &QdrantPinger{store: store}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the store's health check RPC.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if err := p.store.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// pinger is the reachability surface of the keystore.
type pinger interface {
	Ping(ctx context.Context) error
}

// KeystorePinger probes the credential database. It satisfies the Pinger
// interface and is used by GET /api/ready.
type KeystorePinger struct {
	// store is the keystore to probe.
	store pinger
}

// NewKeystorePinger constructs a KeystorePinger for the given store.
func NewKeystorePinger(store pinger) *KeystorePinger {
	return &KeystorePinger{store: store}
}

// Name returns the dependency label used in readiness responses.
func (p *KeystorePinger) Name() string { return "keystore" }

// Ping checks the credential database is reachable.
func (p *KeystorePinger) Ping(ctx context.Context) error {
	return p.store.Ping(ctx)
}
