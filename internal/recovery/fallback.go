package recovery

import "sync"

// Fallback offers an ordered list of alternative options (for example
// output formats) consumed one at a time on repeated failure of the same
// category. The cursor is reset at the start of each top-level task attempt.
type Fallback struct {
	mu      sync.Mutex
	options []string
	index   int
}

// NewFallback creates a fallback over the given ordered options.
func NewFallback(options ...string) *Fallback {
	return &Fallback{options: options}
}

// Next returns the next unconsumed option, or ("", false) when exhausted.
func (f *Fallback) Next() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index >= len(f.options) {
		return "", false
	}
	opt := f.options[f.index]
	f.index++
	return opt, true
}

// HasMore reports whether unconsumed options remain.
func (f *Fallback) HasMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.index < len(f.options)
}

// Reset rewinds the cursor to the first option.
func (f *Fallback) Reset() {
	f.mu.Lock()
	f.index = 0
	f.mu.Unlock()
}

// Fallbacks is one task execution's set of fallback cursors. Each
// execution owns its own set so concurrent recoveries never rewind each
// other's consumption.
type Fallbacks map[Category]*Fallback

// NewFallbacks returns a fresh cursor set over the default options per
// category.
func NewFallbacks() Fallbacks {
	return Fallbacks{
		CategoryFormatConversion: NewFallback("wav", "mp3"),
		CategoryTTSGeneration:    NewFallback("cpu", "fallback_model"),
	}
}

// Next consumes the next option for the category, or "" when the category
// has no fallbacks or they are exhausted.
func (fb Fallbacks) Next(category Category) string {
	f, ok := fb[category]
	if !ok {
		return ""
	}
	opt, ok := f.Next()
	if !ok {
		return ""
	}
	return opt
}
