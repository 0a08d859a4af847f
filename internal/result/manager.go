// Package result stores completed-task output metadata and derives
// download references from the files a task produced.
package result

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxhall/tts-api/internal/domain"
)

// Summary is the listing view of one stored result.
type Summary struct {
	TaskID       uuid.UUID `json:"task_id"`
	Timestamp    time.Time `json:"timestamp"`
	FileCount    int       `json:"file_count"`
	DownloadLink string    `json:"download_link,omitempty"`
	HasFiles     bool      `json:"has_files"`
}

// Manager retains TaskResults from completion until cleanup.
type Manager struct {
	mu        sync.Mutex
	results   map[uuid.UUID]domain.TaskResult
	downloads map[uuid.UUID]string
	logger    *slog.Logger

	// fileExists is swapped in tests.
	fileExists func(path string) bool
}

// NewManager creates a result manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		results:   make(map[uuid.UUID]domain.TaskResult),
		downloads: make(map[uuid.UUID]string),
		logger:    logger.With("component", "result_manager"),
		fileExists: func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		},
	}
}

// Store records the result of a completed task and derives its download
// reference from the primary output file. A missing or absent file yields
// an empty link, which is not an error: the result is still retained.
func (m *Manager) Store(res domain.TaskResult) {
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}

	link := ""
	if primary := res.PrimaryFile(); primary != "" {
		if m.fileExists(primary) {
			link = fmt.Sprintf("/api/tasks/%s/download", res.TaskID)
		} else {
			m.logger.Warn("primary output file missing, no download link",
				"task_id", res.TaskID, "path", primary)
		}
	}

	m.mu.Lock()
	m.results[res.TaskID] = res
	m.downloads[res.TaskID] = link
	m.mu.Unlock()
}

// Result returns the stored result for a task.
func (m *Manager) Result(taskID uuid.UUID) (domain.TaskResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.results[taskID]
	return res, ok
}

// DownloadLink returns the download reference for a task's results. The
// bool reports whether results exist at all; the link itself may be empty
// when the task produced no file material.
func (m *Manager) DownloadLink(taskID uuid.UUID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.results[taskID]; !ok {
		return "", false
	}
	return m.downloads[taskID], true
}

// All returns summaries for every retained result.
func (m *Manager) All() []Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Summary, 0, len(m.results))
	for id, res := range m.results {
		out = append(out, Summary{
			TaskID:       id,
			Timestamp:    res.CreatedAt,
			FileCount:    len(res.OutputFiles),
			DownloadLink: m.downloads[id],
			HasFiles:     len(res.OutputFiles) > 0,
		})
	}
	return out
}

// Cleanup removes the result and download reference for a task.
func (m *Manager) Cleanup(taskID uuid.UUID) {
	m.mu.Lock()
	delete(m.results, taskID)
	delete(m.downloads, taskID)
	m.mu.Unlock()
}

// Count returns the number of retained results.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.results)
}
