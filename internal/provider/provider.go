// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider implements the Provider Layer: OpenAI-compatible HTTP
// chat-completion clients with API-key rotation and RPM rate limiting,
// plus a weighted-random pool provider fronting several endpoints.
package provider

import (
	"context"
	"sync"
	"time"

	"github.com/kraklabs/translate/internal/model"
)

// Provider sends a chat-completion request and returns a normalized
// response. Implementations classify failures into *model.ProviderError
// so the pipeline runner and adaptive concurrency controller can react.
type Provider interface {
	Send(ctx context.Context, req model.ProviderRequest) (*model.ProviderResponse, error)
}

// DefaultStopTokens mirrors the original OpenAICompatProvider default,
// of which only the first four are actually sent (a deliberate original
// quirk we replicate rather than "fix").
var DefaultStopTokens = []string{"<|endoftext|>", "<|im_end|>", "</s>", "<|eot_id|>", "<|end|>", "[DONE]"}

func defaultStop() []string {
	n := 4
	if len(DefaultStopTokens) < n {
		n = len(DefaultStopTokens)
	}
	out := make([]string, n)
	copy(out, DefaultStopTokens[:n])
	return out
}

// rpmLimiter spaces outgoing requests so their rate does not exceed a
// configured requests-per-minute budget. Grounded on the original
// _RpmLimiter: it tracks the last dispatch time and blocks the next
// caller until enough of the per-request interval has elapsed.
type rpmLimiter struct {
	mu       sync.Mutex
	interval time.Duration // 0 disables limiting
	last     time.Time
}

func newRPMLimiter(rpm float64) *rpmLimiter {
	if rpm <= 0 {
		return &rpmLimiter{}
	}
	return &rpmLimiter{interval: time.Duration(float64(time.Minute) / rpm)}
}

// wait blocks the caller until the next dispatch slot is available, or
// until ctx is cancelled.
func (l *rpmLimiter) wait(ctx context.Context) error {
	if l.interval <= 0 {
		return nil
	}
	l.mu.Lock()
	now := time.Now()
	nextAt := l.last.Add(l.interval)
	var sleep time.Duration
	if now.Before(nextAt) {
		sleep = nextAt.Sub(now)
		l.last = nextAt
	} else {
		l.last = now
	}
	l.mu.Unlock()

	if sleep <= 0 {
		return nil
	}
	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// keyRotator cycles through a list of API keys round-robin, mirroring
// itertools.cycle usage in the original provider.
type keyRotator struct {
	mu   sync.Mutex
	keys []string
	next int
}

func newKeyRotator(keys []string) *keyRotator {
	return &keyRotator{keys: keys}
}

func (k *keyRotator) take() string {
	if len(k.keys) == 0 {
		return ""
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	key := k.keys[k.next%len(k.keys)]
	k.next++
	return key
}
