package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ProgressEvent represents a progress update event
type ProgressEvent struct {
	JobID      string    `json:"jobId"`
	State      JobState  `json:"state"`
	Lambda     float64   `json:"lambda"`
	Theta      float64   `json:"theta"`
	Iterations int       `json:"iterations"`
	Objective  float64   `json:"objective"`
	Points     int       `json:"points"`
	Timestamp  time.Time `json:"timestamp"`
}

// progressEvent describes the current state of job.
func progressEvent(job *Job) ProgressEvent {
	return ProgressEvent{
		JobID:      job.ID,
		State:      job.State,
		Lambda:     job.Point.Lambda,
		Theta:      job.Point.Theta,
		Iterations: job.Iterations,
		Objective:  job.Objective,
		Points:     len(job.Fits),
		Timestamp:  time.Now(),
	}
}

// EventBroadcaster fans job progress out to SSE subscribers. The event
// reporting a final state is always delivered and closes every subscriber
// of that job.
type EventBroadcaster struct {
	mu   sync.Mutex
	subs map[string]map[chan ProgressEvent]struct{}
}

// NewEventBroadcaster creates an empty broadcaster.
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{subs: make(map[string]map[chan ProgressEvent]struct{})}
}

// Subscribe registers a subscriber for jobID.
func (eb *EventBroadcaster) Subscribe(jobID string) chan ProgressEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan ProgressEvent, 16)
	if eb.subs[jobID] == nil {
		eb.subs[jobID] = make(map[chan ProgressEvent]struct{})
	}
	eb.subs[jobID][ch] = struct{}{}

	slog.Debug("SSE client subscribed", "job_id", jobID, "subscribers", len(eb.subs[jobID]))
	return ch
}

// Unsubscribe removes ch. It is a no-op once the job's final event closed ch.
func (eb *EventBroadcaster) Unsubscribe(jobID string, ch chan ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.subs[jobID]
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	close(ch)
	if len(subs) == 0 {
		delete(eb.subs, jobID)
	}
	slog.Debug("SSE client unsubscribed", "job_id", jobID)
}

// Subscribers returns the number of open subscriptions for jobID.
func (eb *EventBroadcaster) Subscribers(jobID string) int {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return len(eb.subs[jobID])
}

// Broadcast delivers event to the job's subscribers. Intermediate events
// are dropped for subscribers that fall behind.
func (eb *EventBroadcaster) Broadcast(event ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.subs[event.JobID]
	final := event.State.Done()
	for ch := range subs {
		select {
		case ch <- event:
			continue
		default:
		}
		if !final {
			slog.Warn("SSE subscriber behind, dropping event", "job_id", event.JobID)
			continue
		}
		// Make room for the final event.
		select {
		case <-ch:
		default:
		}
		ch <- event
	}

	if final {
		for ch := range subs {
			close(ch)
		}
		delete(eb.subs, event.JobID)
	}
}

// handleJobStream handles SSE connections for job progress. The stream
// ends after the event that reports a final state.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	eventChan := s.jobManager.broadcaster.Subscribe(jobID)
	defer s.jobManager.broadcaster.Unsubscribe(jobID, eventChan)

	// Re-read after subscribing so a job finishing in between is not missed.
	if current, ok := s.jobManager.GetJob(jobID); ok {
		job = current
	}
	if err := writeSSEEvent(w, progressEvent(job)); err != nil {
		slog.Error("Failed to write initial SSE event", "error", err)
		return
	}
	flusher.Flush()
	if job.State.Done() {
		return
	}

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			slog.Debug("SSE client disconnected", "job_id", jobID)
			return

		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				slog.Error("Failed to write SSE event", "error", err)
				return
			}
			flusher.Flush()
			if event.State.Done() {
				return
			}

		case <-pingTicker.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes an event in SSE format
func writeSSEEvent(w http.ResponseWriter, event ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
