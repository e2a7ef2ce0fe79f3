// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package linepolicy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunQualityChecks_NoChecksConfiguredIsNoop(t *testing.T) {
	err := RunQualityChecks([]string{"a"}, []string{""}, CheckOptions{})
	assert.NoError(t, err)
}

func TestRunQualityChecks_EmptyLineCheckFailsOnBlankOutput(t *testing.T) {
	err := RunQualityChecks(
		[]string{"source text"},
		[]string{""},
		CheckOptions{Checks: "empty_line"},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty_line")
}

func TestRunQualityChecks_EmptyLineCheckPassesWhenOutputPresent(t *testing.T) {
	err := RunQualityChecks(
		[]string{"source text"},
		[]string{"translated"},
		CheckOptions{Checks: "empty_line"},
	)
	assert.NoError(t, err)
}

func TestRunQualityChecks_KanaTraceFailsWhenOutputStillContainsKana(t *testing.T) {
	err := RunQualityChecks(
		[]string{"日本語"},
		[]string{"こんにちは"},
		CheckOptions{Checks: []any{"kana_trace"}, SourceLang: "ja"},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kana_trace")
}

func TestRunQualityChecks_KanaTraceIgnoredForNonJapaneseSource(t *testing.T) {
	err := RunQualityChecks(
		[]string{"source"},
		[]string{"こんにちは"},
		CheckOptions{Checks: []any{"kana_trace"}, SourceLang: "en"},
	)
	assert.NoError(t, err)
}

func TestRunQualityChecks_SimilaritySkippedBelowMinimumCJKCount(t *testing.T) {
	err := RunQualityChecks(
		[]string{"猫"},
		[]string{"猫"},
		CheckOptions{Checks: map[string]any{"similarity": true}},
	)
	assert.NoError(t, err)
}

func TestRunQualityChecks_SimilarityFailsWhenOutputContainsSource(t *testing.T) {
	src := "猫猫猫猫猫猫猫猫猫猫猫"
	err := RunQualityChecks(
		[]string{src},
		[]string{src},
		CheckOptions{Checks: map[string]any{"similarity": true}},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "similarity")
}

func TestRunQualityChecks_SimilarityPassesForDissimilarTranslation(t *testing.T) {
	src := "猫猫猫猫猫猫猫猫猫猫猫"
	err := RunQualityChecks(
		[]string{src},
		[]string{"the cat sat on the mat comfortably"},
		CheckOptions{Checks: map[string]any{"similarity": true}},
	)
	assert.NoError(t, err)
}

func TestRunQualityChecks_TrimOptionNormalizesBeforeComparing(t *testing.T) {
	err := RunQualityChecks(
		[]string{"source"},
		[]string{"  "},
		CheckOptions{Checks: "empty_line", Trim: true},
	)
	require.Error(t, err)
}

func TestRunQualityChecks_StopsAtShorterOfTheTwoLineSets(t *testing.T) {
	err := RunQualityChecks(
		[]string{"a", "b", "c"},
		[]string{"a"},
		CheckOptions{Checks: "empty_line"},
	)
	assert.NoError(t, err)
}

func TestCollectChecks_AcceptsMapListAndBareString(t *testing.T) {
	assert.Equal(t, CheckSet{"similarity": true}, collectChecks(map[string]any{"similarity": true}))
	assert.Equal(t, CheckSet{"a": true, "b": true}, collectChecks([]any{"a", "b"}))
	assert.Equal(t, CheckSet{"empty_line": true}, collectChecks("empty_line"))
}

func TestHasKana_DetectsHiraganaAndKatakana(t *testing.T) {
	assert.True(t, hasKana("こんにちは"))
	assert.True(t, hasKana("コンニチハ"))
	assert.False(t, hasKana("hello"))
}

func TestCountCJKKana_CountsMatchingRunes(t *testing.T) {
	assert.Equal(t, 3, countCJKKana("猫a猫b猫"))
}

func TestJaccardScore_IdenticalTextScoresOne(t *testing.T) {
	assert.Equal(t, 1.0, jaccardScore("hello", "hello"))
}

func TestJaccardScore_EmptyInputScoresZero(t *testing.T) {
	assert.Equal(t, 0.0, jaccardScore("", "hello"))
}

func TestCharBigrams_SingleRuneIsItsOwnElement(t *testing.T) {
	set := charBigrams("x")
	_, ok := set["x"]
	assert.True(t, ok)
	assert.Len(t, set, 1)
}
