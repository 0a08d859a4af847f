package task

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/voxhall/tts-api/internal/engine"
	"github.com/voxhall/tts-api/internal/progress"
)

// execute runs the staged synthesis pipeline for one task and returns the
// path of the finished audio file. fallback, when non-empty, is the
// recovery option consumed by the previous failed attempt: a format name
// redirects conversion, anything else is forwarded to the engine.
func (m *Manager) execute(taskID uuid.UUID, fallback string) (string, error) {
	task, err := m.Status(taskID)
	if err != nil {
		return "", err
	}
	tracker := m.tracker(taskID)
	if tracker == nil {
		return "", fmt.Errorf("no progress tracker registered for task %s", taskID)
	}

	params := task.Params()
	text := stringParam(params, "text")
	voicePrompt := stringParam(params, "voice_prompt")
	outputPath := stringParam(params, "output_path")
	if outputPath == "" {
		outputPath = fmt.Sprintf("outputs/task_%s.wav", taskID)
	}
	format := strings.ToLower(stringParam(params, "output_format"))
	if format == "" {
		format = "wav"
	}

	options := map[string]any{}
	if opts, ok := params["options"].(map[string]any); ok {
		for k, v := range opts {
			options[k] = v
		}
	}
	switch fallback {
	case "":
	case "wav", "mp3":
		format = fallback
	default:
		options["fallback"] = fallback
	}

	// In-flight inference rides out a shutdown, so the execution context is
	// deliberately not derived from the manager's lifecycle context. Only
	// the per-attempt deadline can abort an engine call.
	ctx := context.Background()
	if m.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.TaskTimeout)
		defer cancel()
	}

	// Text Processing.
	tracker.StartStage("Text Processing", "Loading text", "Segmenting text")
	m.ReportProgress(taskID, tracker.OverallProgress(), "Text Processing", nil)
	if strings.TrimSpace(text) == "" {
		return "", &stageError{
			stage: "text processing",
			err:   fmt.Errorf("invalid input: text is empty"),
		}
	}
	tracker.UpdateStageProgress(1.0, "Text segmentation complete")
	tracker.CompleteStage("")

	// Audio Generation is where nearly all the wall time goes.
	tracker.StartStage("Audio Generation", "TTS inference")
	m.ReportProgress(taskID, tracker.OverallProgress(), "Audio Generation", tracker.EstimateRemaining())
	resultPath, err := m.engine.Infer(ctx, engine.InferenceRequest{
		Text:        text,
		VoicePrompt: voicePrompt,
		OutputPath:  outputPath,
		Options:     options,
	})
	if err != nil {
		return "", &stageError{stage: "inference", err: err}
	}
	tracker.UpdateStageProgress(1.0, "Audio generation complete")
	tracker.CompleteStage("")

	// Format Conversion is skipped when the target is already wav or the
	// deployment has no converter available.
	if format != "wav" {
		if !m.caps.AudioConversion {
			m.logger.Warn("audio conversion unavailable, keeping wav output",
				"task_id", taskID, "requested_format", format)
		} else {
			tracker.StartStage("Format Conversion", "Transcoding audio")
			m.ReportProgress(taskID, tracker.OverallProgress(), "Format Conversion", tracker.EstimateRemaining())
			converted, cerr := m.converter.Convert(ctx, resultPath, format, engine.ConvertOptions{
				BitrateKbps: intParam(params, "bitrate_kbps"),
			})
			if cerr != nil {
				return "", &stageError{stage: "conversion", err: cerr}
			}
			resultPath = converted
			tracker.UpdateStageProgress(1.0, "Conversion complete")
			tracker.CompleteStage("")
		}
	}

	// File Saving verifies the engine actually produced the file. A missing
	// file is reported but not fatal: some engines stream to remote storage.
	tracker.StartStage("File Saving", "Verifying output file")
	m.ReportProgress(taskID, tracker.OverallProgress(), "File Saving", tracker.EstimateRemaining())
	if _, serr := os.Stat(resultPath); serr != nil {
		m.logger.Warn("result file not found on disk",
			"task_id", taskID, "path", resultPath, "error", serr)
	}
	tracker.UpdateStageProgress(1.0, "File verification complete")
	tracker.CompleteStage("")

	return resultPath, nil
}

func (m *Manager) tracker(taskID uuid.UUID) *progress.Tracker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trackers[taskID]
}

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func intParam(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
