// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/translate/internal/model"
)

type stubProvider struct {
	id    string
	resp  *model.ProviderResponse
	err   error
	calls int
}

func (s *stubProvider) Send(ctx context.Context, req model.ProviderRequest) (*model.ProviderResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func TestNormalizeWeight_NonPositiveOrNonFiniteBecomesOne(t *testing.T) {
	assert.Equal(t, 1.0, normalizeWeight(0))
	assert.Equal(t, 1.0, normalizeWeight(-5))
	assert.Equal(t, 2.5, normalizeWeight(2.5))
}

func TestPoolProvider_PinnedRequestGoesToNamedEndpoint(t *testing.T) {
	a := &stubProvider{resp: &model.ProviderResponse{Text: "from-a"}}
	b := &stubProvider{resp: &model.ProviderResponse{Text: "from-b"}}
	pool := NewPoolProvider([]PoolMember{
		{ID: "a", Provider: a, Weight: 1},
		{ID: "b", Provider: b, Weight: 1},
	})

	resp, err := pool.Send(context.Background(), model.ProviderRequest{EndpointID: "b"})
	require.NoError(t, err)
	assert.Equal(t, "from-b", resp.Text)
	assert.Equal(t, 0, a.calls)
	assert.Equal(t, 1, b.calls)
	assert.Equal(t, "b", resp.Raw["pool_endpoint_id"])
}

func TestPoolProvider_UnknownPinThenFallsBackToWeightedPick(t *testing.T) {
	a := &stubProvider{resp: &model.ProviderResponse{Text: "from-a"}}
	pool := NewPoolProvider([]PoolMember{{ID: "a", Provider: a, Weight: 1}})

	resp, err := pool.Send(context.Background(), model.ProviderRequest{EndpointID: "nonexistent"})
	require.NoError(t, err)
	assert.Equal(t, "from-a", resp.Text)
}

func TestPoolProvider_NoMembersErrors(t *testing.T) {
	pool := NewPoolProvider(nil)
	_, err := pool.Send(context.Background(), model.ProviderRequest{})
	assert.Error(t, err)
}

func TestPoolProvider_MemberErrorPropagates(t *testing.T) {
	failing := &stubProvider{err: &model.ProviderError{Message: "boom"}}
	pool := NewPoolProvider([]PoolMember{{ID: "a", Provider: failing, Weight: 1}})
	_, err := pool.Send(context.Background(), model.ProviderRequest{EndpointID: "a"})
	assert.Error(t, err)
}
