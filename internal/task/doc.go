// Package task manages background job queuing, processing, and lifecycle.
// It provides mechanisms for asynchronous execution of long-running TTS
// operations, ensuring they don't block request handling, tracking per-task
// progress, and recovering from failures through classified retries.
package task
