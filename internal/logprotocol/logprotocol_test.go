// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package logprotocol

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	defer func() { stdout = prev }()
	fn()
	return buf.String()
}

func TestEmit_FramesLineWithPrefixAndPayload(t *testing.T) {
	out := captureStdout(t, func() {
		Emit("JSON_TEST", map[string]string{"k": "v"})
	})
	assert.True(t, strings.HasPrefix(out, "\nJSON_TEST:"))
	assert.True(t, strings.HasSuffix(out, "\n"))

	jsonPart := strings.TrimSuffix(strings.TrimPrefix(out, "\nJSON_TEST:"), "\n")
	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(jsonPart), &decoded))
	assert.Equal(t, "v", decoded["k"])
}

func TestEmitOutputPath(t *testing.T) {
	out := captureStdout(t, func() { EmitOutputPath("/tmp/out.txt") })
	assert.Contains(t, out, "JSON_OUTPUT_PATH:")
	assert.Contains(t, out, "/tmp/out.txt")
}

func TestEmitError_DefaultsTitleWhenEmpty(t *testing.T) {
	out := captureStdout(t, func() { EmitError("boom", "") })
	assert.Contains(t, out, `"title":"Pipeline Error"`)
	assert.Contains(t, out, `"message":"boom"`)
}

func TestEmitRetry_OmitsLineCountsWhenBothZero(t *testing.T) {
	out := captureStdout(t, func() { EmitRetry(1, 2, "timeout", 0, 0) })
	assert.NotContains(t, out, "src_lines")
}

func TestEmitRetry_IncludesLineCountsWhenPresent(t *testing.T) {
	out := captureStdout(t, func() { EmitRetry(1, 2, "timeout", 5, 3) })
	assert.Contains(t, out, `"src_lines":5`)
	assert.Contains(t, out, `"dst_lines":3`)
}

func TestEmitWarning_DefaultsTypeToQuality(t *testing.T) {
	out := captureStdout(t, func() { EmitWarning(0, "msg", "") })
	assert.Contains(t, out, `"type":"quality"`)
}

func TestEmitFinal_OmitsEmptyErrorStatusCodes(t *testing.T) {
	out := captureStdout(t, func() { EmitFinal(FinalPayload{TotalTime: 1.5}) })
	assert.NotContains(t, out, "errorStatusCodes")
}
