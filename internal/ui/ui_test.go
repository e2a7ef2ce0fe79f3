// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestLabel_ContainsText(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	assert.Equal(t, "source", Label("source"))
}

func TestCountText_FormatsInteger(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	assert.Equal(t, "42", CountText(42))
}

func TestDimText_ContainsText(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	assert.Equal(t, "note", DimText("note"))
}

func TestNewProgressConfig_DisabledForJSONEventsOrQuiet(t *testing.T) {
	assert.False(t, NewProgressConfig(true, false).Enabled)
	assert.False(t, NewProgressConfig(false, true).Enabled)
}

func TestNewBar_NilWhenDisabled(t *testing.T) {
	assert.Nil(t, NewBar(ProgressConfig{Enabled: false}, 10, "working"))
}

func TestNewBar_NonNilWhenEnabled(t *testing.T) {
	bar := NewBar(ProgressConfig{Enabled: true}, 10, "working")
	assert.NotNil(t, bar)
}
