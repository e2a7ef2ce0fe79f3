// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/translate/internal/chunk"
	"github.com/kraklabs/translate/internal/linepolicy"
	"github.com/kraklabs/translate/internal/logprotocol"
	"github.com/kraklabs/translate/internal/model"
)

// fakeProvider returns one canned response per call, in order, cycling
// to the last entry once exhausted.
type fakeProvider struct {
	responses []string
	calls     int
}

func (f *fakeProvider) Send(_ context.Context, _ model.ProviderRequest) (*model.ProviderResponse, error) {
	i := f.calls
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	f.calls++
	return &model.ProviderResponse{Text: f.responses[i]}, nil
}

// rejectUntilPolicy mismatches any output equal to its configured bad
// text and accepts everything else, so a test can force exactly one
// line-policy failure before the next attempt succeeds.
type rejectUntilPolicy struct {
	bad string
}

func (p *rejectUntilPolicy) Apply(_ []string, outputLines []string) ([]string, error) {
	if len(outputLines) > 0 && outputLines[0] == p.bad {
		return nil, &linepolicy.MismatchError{}
	}
	return outputLines, nil
}

// erroringProvider always fails, mirroring a provider outage.
type erroringProvider struct {
	err error
}

func (e *erroringProvider) Send(_ context.Context, _ model.ProviderRequest) (*model.ProviderResponse, error) {
	return nil, e.err
}

func newTestWorker(rp *resolvedPipeline, sourceLines []string, blocks []chunk.Block) *worker {
	return &worker{
		rp:          rp,
		sourceLines: sourceLines,
		blocks:      blocks,
		temp:        &tempWriter{},
		tracker:     logprotocol.NewTracker(len(blocks), len(sourceLines), 0),
		translated:  make([]*model.TextBlock, len(blocks)),
		lineErrors:  newLineErrorSink(),
	}
}

func TestExtractJSONL_ResolvesByKeyLookup(t *testing.T) {
	text := `jsonline{"1":"bonjour"}` + "\n" + `jsonline{"2":"monde"}`
	out, err := extractJSONL(text, []int{0, 1})
	require.NoError(t, err)
	assert.Equal(t, "bonjour\nmonde", out)
}

func TestExtractJSONL_FallsBackToPositionalOrder(t *testing.T) {
	text := `{"x":"bonjour"}` + "\n" + `{"y":"monde"}`
	out, err := extractJSONL(text, []int{0, 1})
	require.NoError(t, err)
	assert.Equal(t, "bonjour\nmonde", out)
}

func TestExtractJSONL_MissingLineErrors(t *testing.T) {
	_, err := extractJSONL("", []int{0})
	assert.Error(t, err)
}

func TestExtractJSONL_SkipsInvalidJSONLines(t *testing.T) {
	text := "not json\n" + `jsonline{"1":"bonjour"}`
	out, err := extractJSONL(text, []int{0})
	require.NoError(t, err)
	assert.Equal(t, "bonjour", out)
}

func TestBlockLineIndex_ReturnsFirstMetadataEntry(t *testing.T) {
	block := chunk.Block{Metadata: []any{3, 4}}
	idx, ok := blockLineIndex(block)
	assert.True(t, ok)
	assert.Equal(t, 3, idx)
}

func TestBlockLineIndex_NoMetadataReturnsFalse(t *testing.T) {
	_, ok := blockLineIndex(chunk.Block{})
	assert.False(t, ok)
}

func TestBlockLineRange_SpansAllMetadataEntries(t *testing.T) {
	block := chunk.Block{Metadata: []any{3, 4, 5}}
	start, end := blockLineRange(block, 3, true)
	assert.Equal(t, 3, start)
	assert.Equal(t, 6, end)
}

func TestBlockLineRange_NoIndexDefaultsToSingleLine(t *testing.T) {
	start, end := blockLineRange(chunk.Block{}, 0, false)
	assert.Equal(t, 0, start)
	assert.Equal(t, 1, end)
}

func TestBuildContext_NoWindowConfiguredReturnsEmpty(t *testing.T) {
	before, after := buildContext([]string{"a", "b", "c"}, 1, 2, nil)
	assert.Empty(t, before)
	assert.Empty(t, after)
}

func TestBuildContext_BuildsBeforeAndAfterWindows(t *testing.T) {
	lines := []string{"l0", "l1", "l2", "l3", "l4"}
	before, after := buildContext(lines, 2, 3, map[string]any{"before_lines": 2, "after_lines": 1})
	assert.Equal(t, "l0\nl1", before)
	assert.Equal(t, "l3", after)
}

func TestResolveSourceWindow_DefaultsToOneLine(t *testing.T) {
	start, end := resolveSourceWindow([]string{"a", "b", "c"}, 1, nil)
	assert.Equal(t, 1, start)
	assert.Equal(t, 2, end)
}

func TestResolveSourceWindow_ClampsToSourceLength(t *testing.T) {
	start, end := resolveSourceWindow([]string{"a", "b"}, 1, map[string]any{"source_lines": 5})
	assert.Equal(t, 1, start)
	assert.Equal(t, 2, end)
}

func TestFilterTargetLineIDs_RestrictsToBlockOwnMetadataWithinWindow(t *testing.T) {
	ids := filterTargetLineIDs([]any{1}, 0, 3, 1)
	assert.Equal(t, []int{1}, ids)
}

func TestFilterTargetLineIDs_FallsBackToLineIndexWhenMetadataOutsideWindow(t *testing.T) {
	ids := filterTargetLineIDs([]any{5}, 0, 3, 0)
	assert.Equal(t, []int{0}, ids)
}

func TestFilterTargetLineIDs_FallsBackToLineIndexWhenMetadataEmpty(t *testing.T) {
	ids := filterTargetLineIDs(nil, 0, 3, 2)
	assert.Equal(t, []int{2}, ids)
}

func TestFilterTargetLineIDs_KeepsAllMatchingMultiLineBlockMetadata(t *testing.T) {
	ids := filterTargetLineIDs([]any{2, 3}, 0, 4, 2)
	assert.Equal(t, []int{2, 3}, ids)
}

func TestTranslateOne_LinePolicyMismatchRetriesInsideAttemptLoop(t *testing.T) {
	fp := &fakeProvider{responses: []string{"bad", "good"}}
	pol := &rejectUntilPolicy{bad: "bad"}
	rp := &resolvedPipeline{
		provider:        fp,
		linePolicy:      pol,
		applyLinePolicy: true,
		chunkType:       "line",
		maxRetries:      2,
		settings:        map[string]any{},
	}
	blocks := []chunk.Block{{Text: "src", Metadata: []any{0}}}
	w := newTestWorker(rp, []string{"src"}, blocks)

	tb, err := w.translateOne(0, blocks[0])
	require.NoError(t, err)
	require.NotNil(t, tb)
	assert.Equal(t, "good", tb.Text)
	assert.Equal(t, 2, fp.calls, "line-policy mismatch must trigger a second provider round trip")
}

func TestTranslateOne_LinePolicyMismatchFallsBackOnlyAfterRetriesExhausted(t *testing.T) {
	fp := &fakeProvider{responses: []string{"bad"}}
	pol := &rejectUntilPolicy{bad: "bad"}
	rp := &resolvedPipeline{
		provider:        fp,
		linePolicy:      pol,
		applyLinePolicy: true,
		chunkType:       "line",
		maxRetries:      1,
		settings:        map[string]any{},
	}
	blocks := []chunk.Block{{Text: "src", Metadata: []any{0}}}
	w := newTestWorker(rp, []string{"src"}, blocks)

	tb, err := w.translateOne(0, blocks[0])
	require.NoError(t, err)
	require.NotNil(t, tb)
	assert.Equal(t, 2, fp.calls, "must exhaust attempt <= maxRetries before falling back")
	assert.Len(t, w.lineErrors.snapshot(), 1)
}

func TestTranslateOne_ProviderErrorStillClassifiesSeparatelyFromLinePolicy(t *testing.T) {
	errProvider := &erroringProvider{err: errors.New("boom")}
	pol := &rejectUntilPolicy{bad: "never-matches"}
	rp := &resolvedPipeline{
		provider:        errProvider,
		linePolicy:      pol,
		applyLinePolicy: true,
		chunkType:       "line",
		maxRetries:      0,
		settings:        map[string]any{},
	}
	blocks := []chunk.Block{{Text: "src", Metadata: []any{0}}}
	w := newTestWorker(rp, []string{"src"}, blocks)

	tb, err := w.translateOne(0, blocks[0])
	require.NoError(t, err)
	require.NotNil(t, tb)
	assert.Equal(t, "src", tb.Text)
	entries := w.lineErrors.snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, "provider_error", entries[0].Kind)
}

func TestBuildJSONLRange_EncodesOneBasedKeys(t *testing.T) {
	out := buildJSONLRange([]string{"a", "b", "c"}, 0, 2)
	assert.Equal(t, `jsonline{"1":"a"}`+"\n"+`jsonline{"2":"b"}`, out)
}

func TestBuildJSONLRange_EmptyRangeReturnsEmptyString(t *testing.T) {
	assert.Equal(t, "", buildJSONLRange([]string{"a"}, 1, 1))
}

func TestSafeSlice_ClampsOutOfBoundsIndices(t *testing.T) {
	lines := []string{"a", "b", "c"}
	assert.Equal(t, []string{"a", "b", "c"}, safeSlice(lines, -5, 50))
	assert.Nil(t, safeSlice(lines, 2, 1))
}

func TestLineErrorSink_RecordAndSnapshot(t *testing.T) {
	sink := newLineErrorSink()
	sink.record(0, "timeout", "request timed out")
	sink.record(1, "parse", "invalid json")
	entries := sink.snapshot()
	require.Len(t, entries, 2)
	assert.Equal(t, "timeout", entries[0].Kind)
}

func TestMetaFromBlock_NilWhenNoMetadata(t *testing.T) {
	assert.Nil(t, metaFromBlock(chunk.Block{}))
}

func TestMetaFromBlock_WrapsMetadataUnderItemsKey(t *testing.T) {
	meta := metaFromBlock(chunk.Block{Metadata: []any{1, 2}})
	assert.Equal(t, []any{1, 2}, meta["items"])
}
