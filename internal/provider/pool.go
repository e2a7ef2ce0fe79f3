// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/kraklabs/translate/internal/model"
)

// PoolMember is one weighted endpoint in a pool provider.
type PoolMember struct {
	ID       string
	Provider Provider
	Weight   float64
}

// normalizeWeight coerces a non-finite or non-positive weight to 1.0,
// mirroring _normalize_weight.
func normalizeWeight(w float64) float64 {
	if math.IsNaN(w) || math.IsInf(w, 0) || w <= 0 {
		return 1.0
	}
	return w
}

// PoolProvider dispatches requests to one of several member providers,
// chosen by weighted random selection. A request carrying the EndpointID
// of a known member is pinned to that member; an unknown id falls back to
// the weighted pick. The pipeline runner does not set EndpointID, so its
// retries are picked by weight like first attempts.
type PoolProvider struct {
	mu      sync.Mutex
	rng     *rand.Rand
	members []PoolMember
	byID    map[string]PoolMember
}

func NewPoolProvider(members []PoolMember) *PoolProvider {
	byID := make(map[string]PoolMember, len(members))
	normalized := make([]PoolMember, len(members))
	for i, m := range members {
		m.Weight = normalizeWeight(m.Weight)
		normalized[i] = m
		byID[m.ID] = m
	}
	return &PoolProvider{
		rng:     rand.New(rand.NewSource(1)), //nolint:gosec // weighted endpoint selection, not security sensitive
		members: normalized,
		byID:    byID,
	}
}

func (p *PoolProvider) pick(pinned string) (PoolMember, error) {
	if pinned != "" {
		if m, ok := p.byID[pinned]; ok {
			return m, nil
		}
	}
	if len(p.members) == 0 {
		return PoolMember{}, fmt.Errorf("pool provider has no members")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var total float64
	for _, m := range p.members {
		total += m.Weight
	}
	r := p.rng.Float64() * total
	for _, m := range p.members {
		r -= m.Weight
		if r <= 0 {
			return m, nil
		}
	}
	return p.members[len(p.members)-1], nil
}

func (p *PoolProvider) Send(ctx context.Context, req model.ProviderRequest) (*model.ProviderResponse, error) {
	member, err := p.pick(req.EndpointID)
	if err != nil {
		return nil, &model.ProviderError{Message: err.Error(), Retryable: false}
	}

	resp, err := member.Provider.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Raw == nil {
		resp.Raw = map[string]any{}
	}
	resp.Raw["pool_endpoint_id"] = member.ID
	return resp, nil
}
