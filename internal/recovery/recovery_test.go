package recovery

import (
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func TestClassifyKeywords(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		stage    string
		expected Category
	}{
		{"timeout", errors.New("request timeout after 30s"), "", CategoryNetwork},
		{"connection", errors.New("connection refused"), "", CategoryNetwork},
		{"memory", errors.New("out of memory"), "", CategoryResource},
		{"cuda", errors.New("CUDA error: device unavailable"), "", CategoryResource},
		{"disk", errors.New("no space left on disk"), "", CategoryResource},
		{"invalid", errors.New("invalid voice prompt"), "", CategoryValidation},
		{"validation", errors.New("parameter validation failed"), "", CategoryValidation},
		{"encoding", errors.New("text encoding not supported"), "", CategoryFileProcessing},
		{"permission", errors.New("permission denied"), "", CategoryFileProcessing},
		{"file not found", errors.New("file not found: out.wav"), "", CategoryFileProcessing},
		{"inference stage", errors.New("model exploded"), "inference", CategoryTTSGeneration},
		{"model loading stage", errors.New("weights missing"), "model_loading", CategoryTTSGeneration},
		{"conversion stage", errors.New("ffmpeg exited 1"), "conversion", CategoryFormatConversion},
		{"unknown", errors.New("something odd"), "", CategoryUnknown},
		{"nil", nil, "", CategoryUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err, Context{Stage: tc.stage})
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestKeywordsWinOverStage(t *testing.T) {
	// A timeout during inference is a network error, not a TTS error.
	got := Classify(errors.New("timeout waiting for model server"), Context{Stage: "inference"})
	assert.Equal(t, CategoryNetwork, got)
}

func TestValidationNeverRetried(t *testing.T) {
	policy := defaultPolicies()[CategoryValidation]
	assert.False(t, policy.ShouldRetry(0))
	assert.Equal(t, 0, policy.MaxAttempts())
}

func TestNetworkBackoffDelays(t *testing.T) {
	policy := defaultPolicies()[CategoryNetwork]
	require.Equal(t, 5, policy.MaxAttempts())

	// delays(n) = min(1.0 * 2^n, 60.0) for n = 0..4
	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}
	prev := time.Duration(0)
	for n, want := range expected {
		assert.True(t, policy.ShouldRetry(n), "retry %d should be allowed", n)
		got := policy.Delay(n)
		assert.Equal(t, want, got)
		assert.Greater(t, got, prev, "delays must strictly increase below the cap")
		prev = got
	}
	assert.False(t, policy.ShouldRetry(5))

	// Cap at 60s for large retry counts.
	assert.Equal(t, 60*time.Second, policy.Delay(10))
}

func TestRetryTableConstants(t *testing.T) {
	policies := defaultPolicies()

	cases := []struct {
		category Category
		attempts int
		first    time.Duration
	}{
		{CategoryTTSGeneration, 3, 2 * time.Second},
		{CategoryFileProcessing, 2, 0},
		{CategoryFormatConversion, 2, time.Second},
		{CategoryNetwork, 5, time.Second},
		{CategoryResource, 3, 5 * time.Second},
		{CategoryValidation, 0, 0},
		{CategoryUnknown, 2, time.Second},
	}

	for _, tc := range cases {
		t.Run(string(tc.category), func(t *testing.T) {
			p := policies[tc.category]
			assert.Equal(t, tc.attempts, p.MaxAttempts())
			assert.Equal(t, tc.first, p.Delay(0))
		})
	}
}

func TestExponentialBackoffDoubles(t *testing.T) {
	p := defaultPolicies()[CategoryTTSGeneration]
	assert.Equal(t, 2*time.Second, p.Delay(0))
	assert.Equal(t, 4*time.Second, p.Delay(1))
	assert.Equal(t, 8*time.Second, p.Delay(2))
}

func TestFallbackCursor(t *testing.T) {
	f := NewFallback("wav", "mp3")

	opt, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, "wav", opt)
	assert.True(t, f.HasMore())

	opt, ok = f.Next()
	require.True(t, ok)
	assert.Equal(t, "mp3", opt)
	assert.False(t, f.HasMore())

	_, ok = f.Next()
	assert.False(t, ok)

	f.Reset()
	opt, ok = f.Next()
	require.True(t, ok)
	assert.Equal(t, "wav", opt)
}

func TestHandlerHandle(t *testing.T) {
	h := NewHandler(setupTestLogger())
	ctx := Context{TaskID: uuid.New(), TaskType: "tts_generation", Stage: "conversion"}
	fb := NewFallbacks()

	resp := h.Handle(CategoryFormatConversion, errors.New("ffmpeg exited 1"), ctx, 0, fb)
	assert.True(t, resp.ShouldRetry)
	assert.Equal(t, time.Second, resp.RetryDelay)
	assert.Equal(t, "wav", resp.FallbackOption)
	assert.NotEmpty(t, resp.Suggestions)

	resp = h.Handle(CategoryFormatConversion, errors.New("ffmpeg exited 1"), ctx, 1, fb)
	assert.True(t, resp.ShouldRetry)
	assert.Equal(t, "mp3", resp.FallbackOption)

	resp = h.Handle(CategoryFormatConversion, errors.New("ffmpeg exited 1"), ctx, 2, fb)
	assert.False(t, resp.ShouldRetry)
	assert.Empty(t, resp.FallbackOption)
}

func TestHandlerNilFallbacks(t *testing.T) {
	h := NewHandler(setupTestLogger())
	ctx := Context{TaskID: uuid.New()}

	resp := h.Handle(CategoryFormatConversion, errors.New("x"), ctx, 0, nil)
	assert.True(t, resp.ShouldRetry)
	assert.Empty(t, resp.FallbackOption)
}

func TestHandlerFallbacksIsolatedPerSet(t *testing.T) {
	h := NewHandler(setupTestLogger())
	ctxA := Context{TaskID: uuid.New()}
	ctxB := Context{TaskID: uuid.New()}
	fbA := NewFallbacks()
	fbB := NewFallbacks()

	resp := h.Handle(CategoryFormatConversion, errors.New("x"), ctxA, 0, fbA)
	assert.Equal(t, "wav", resp.FallbackOption)

	// Another task's cursor set starts from the beginning regardless of
	// what the first task consumed.
	resp = h.Handle(CategoryFormatConversion, errors.New("x"), ctxB, 0, fbB)
	assert.Equal(t, "wav", resp.FallbackOption)

	resp = h.Handle(CategoryFormatConversion, errors.New("x"), ctxA, 1, fbA)
	assert.Equal(t, "mp3", resp.FallbackOption)
}

func TestTracker(t *testing.T) {
	tr := NewTracker()
	id := uuid.New()

	assert.Equal(t, 1, tr.RecordAttempt(id))
	assert.Equal(t, 2, tr.RecordAttempt(id))
	assert.Equal(t, 2, tr.Attempts(id))

	tr.RecordFailure(id, ErrorInfo{Category: CategoryUnknown})

	stats := tr.Stats()
	assert.Equal(t, 1, stats["active_recoveries"])
	assert.Equal(t, 1, stats["failed_tasks"])
	assert.Equal(t, 2, stats["total_recovery_attempts"])

	tr.Cleanup(id)
	assert.Equal(t, 0, tr.Attempts(id))
	stats = tr.Stats()
	assert.Equal(t, 0, stats["active_recoveries"])
}

func TestSuggestionsPerCategory(t *testing.T) {
	for _, c := range []Category{
		CategoryTTSGeneration, CategoryFileProcessing, CategoryFormatConversion,
		CategoryResource, CategoryNetwork,
	} {
		assert.NotEmpty(t, Suggestions(c), "category %s", c)
	}
	assert.Empty(t, Suggestions(CategoryUnknown))
	assert.Empty(t, Suggestions(CategoryValidation))
}
