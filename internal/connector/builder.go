package connector

import (
	"context"
	"sync/atomic"
)

// Builder is the external collaborator the Pool consumes to mint new
// Connectors and to compute the registry key two equivalent configurations
// share.
type Builder interface {
	Build(ctx context.Context, role Role) (*Connector, error)
	Key() string
}

// ClusterBuilder is the default Builder: one write primary DSN and a list
// of read-replica DSNs selected round-robin on connector creation. There is
// no health scoring of replicas (explicitly out of scope) — a bad replica
// simply produces a Connector whose first query fails and is evicted by the
// Pool like any other unhealthy connection.
type ClusterBuilder struct {
	Primary     DSN
	Replicas    []DSN
	replicaNext uint64
}

// NewClusterBuilder builds a Builder for a primary plus optional replicas.
// With no replicas, read traffic falls back to the primary DSN.
func NewClusterBuilder(primary DSN, replicas ...DSN) *ClusterBuilder {
	return &ClusterBuilder{Primary: primary, Replicas: replicas}
}

func (b *ClusterBuilder) Build(ctx context.Context, role Role) (*Connector, error) {
	dsn := b.dsnFor(role)
	c := New(dsn, role)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (b *ClusterBuilder) dsnFor(role Role) DSN {
	if role == RoleWrite || len(b.Replicas) == 0 {
		return b.Primary
	}
	idx := atomic.AddUint64(&b.replicaNext, 1) - 1
	return b.Replicas[idx%uint64(len(b.Replicas))]
}

// Key derives the registry identity from the primary DSN only: two
// ClusterBuilders pointed at the same primary (regardless of replica list
// drift) are considered the same logical pool.
func (b *ClusterBuilder) Key() string {
	return b.Primary.key()
}
