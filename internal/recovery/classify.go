// Package recovery classifies task errors into categories and supplies the
// per-category retry, backoff and fallback policy that the worker's
// recovery wrapper consults between attempts.
package recovery

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category identifies a class of task failure with a shared recovery policy.
type Category string

// Error categories.
const (
	CategoryTTSGeneration    Category = "tts_generation"
	CategoryFileProcessing   Category = "file_processing"
	CategoryFormatConversion Category = "format_conversion"
	CategoryNetwork          Category = "network_error"
	CategoryResource         Category = "resource_error"
	CategoryValidation       Category = "validation_error"
	CategoryUnknown          Category = "unknown_error"
)

// Context carries where an error happened, used when the message alone is
// not enough to classify it.
type Context struct {
	TaskID   uuid.UUID
	TaskType string
	Stage    string
	Attempt  int
}

// ErrorInfo describes one classified error occurrence. Produced fresh on
// every error and consumed by the retry/fallback decision.
type ErrorInfo struct {
	Category   Category
	Err        error
	Context    Context
	Timestamp  time.Time
	RetryCount int
}

// Keyword rules, checked in order against the lowercased error message.
// Stage context is the fallback when no keyword matches.
var keywordRules = []struct {
	category Category
	keywords []string
}{
	{CategoryFileProcessing, []string{"encoding", "decode", "file not found", "permission"}},
	{CategoryNetwork, []string{"connection", "timeout", "network", "dns"}},
	{CategoryResource, []string{"memory", "disk", "cuda", "out of memory"}},
	{CategoryValidation, []string{"invalid", "validation"}},
}

var ttsStages = map[string]bool{
	"inference":      true,
	"tts_generation": true,
	"model_loading":  true,
}

var conversionStages = map[string]bool{
	"conversion":        true,
	"format_conversion": true,
	"audio_processing":  true,
}

// Classify maps an error to a category using message keywords first, then
// the stage recorded in the context, defaulting to CategoryUnknown.
func Classify(err error, ctx Context) Category {
	if err == nil {
		return CategoryUnknown
	}
	message := strings.ToLower(err.Error())

	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(message, kw) {
				return rule.category
			}
		}
	}

	if ttsStages[ctx.Stage] {
		return CategoryTTSGeneration
	}
	if conversionStages[ctx.Stage] {
		return CategoryFormatConversion
	}

	return CategoryUnknown
}
