// Package engine defines the boundary to the TTS inference engine and the
// audio format converter. Both are external collaborators: long-running,
// blocking, fallible calls that write files. Workers invoke them outside
// any manager lock.
package engine

import "context"

// InferenceRequest carries one synthesis request to the engine.
type InferenceRequest struct {
	// Text is the content to synthesize.
	Text string

	// VoicePrompt references the voice sample to clone.
	VoicePrompt string

	// OutputPath is where the engine writes the generated audio. Each task
	// owns its output path; callers must not share paths across tasks.
	OutputPath string

	// Options carries engine-specific generation parameters.
	Options map[string]any
}

// Engine synthesizes audio from text. Infer blocks for the full duration
// of generation, possibly minutes, and returns the path of the written
// audio file.
type Engine interface {
	Infer(ctx context.Context, req InferenceRequest) (string, error)
}

// ConvertOptions carries converter parameters.
type ConvertOptions struct {
	// BitrateKbps applies to lossy targets such as mp3.
	BitrateKbps int

	// Metadata is embedded into the converted file when the format
	// supports it.
	Metadata map[string]string
}

// Converter transcodes an audio file into a target format, returning the
// path of the converted file.
type Converter interface {
	Convert(ctx context.Context, path, targetFormat string, opts ConvertOptions) (string, error)
}
