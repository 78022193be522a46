package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/Divyansh2602/pdf-agent/internal/domain"
)

// Event is one progress notification fanned out to subscribers. The UI layer
// filters by session.
type Event struct {
	RequestID string   `json:"requestId"`
	SessionID string   `json:"sessionId"`
	Filename  string   `json:"filename"`
	State     string   `json:"state"`
	Message   string   `json:"message"`
	PDFPath   string   `json:"pdfPath,omitempty"`
	Error     string   `json:"error,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// Tracker owns the in-flight job table. State is volatile and process-local;
// a restart forgets every job.
type Tracker struct {
	mu          sync.RWMutex
	jobs        map[string]domain.Job
	subscribers map[int]func(Event)
	nextSub     int
}

func NewTracker() *Tracker {
	return &Tracker{
		jobs:        map[string]domain.Job{},
		subscribers: map[int]func(Event){},
	}
}

var stateRank = map[string]int{
	domain.JobStateQueued:     0,
	domain.JobStateProcessing: 1,
	domain.JobStateCompleted:  2,
	domain.JobStateFailed:     2,
}

// Create registers a new job in the queued state.
func (t *Tracker) Create(req domain.ConversionRequest) domain.Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	job := domain.Job{
		RequestID: req.ID,
		SessionID: req.SessionID,
		Filename:  req.Filename,
		State:     domain.JobStateQueued,
		Message:   "Conversion queued",
		CreatedAt: time.Now().Unix(),
	}
	t.jobs[req.ID] = job
	return job
}

// TransitionOption mutates the job alongside a state change.
type TransitionOption func(*domain.Job)

func WithArtifact(path string) TransitionOption {
	return func(job *domain.Job) { job.ArtifactPath = path }
}

func WithError(detail string) TransitionOption {
	return func(job *domain.Job) { job.ErrorDetail = detail }
}

func WithWarnings(warnings []string) TransitionOption {
	return func(job *domain.Job) { job.Warnings = warnings }
}

// Transition moves a job to newState and notifies subscribers. Transitions
// are monotonic: a job never leaves a terminal state and never re-enters an
// earlier one. Repeated processing transitions carry progress messages.
func (t *Tracker) Transition(requestID, newState, message string, opts ...TransitionOption) error {
	t.mu.Lock()

	job, ok := t.jobs[requestID]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("job %s not found", requestID)
	}

	currentRank, newRank := stateRank[job.State], stateRank[newState]
	if currentRank >= stateRank[domain.JobStateCompleted] {
		t.mu.Unlock()
		return fmt.Errorf("job %s is already %s", requestID, job.State)
	}
	if newRank < currentRank || (newRank == currentRank && newState != domain.JobStateProcessing) {
		t.mu.Unlock()
		return fmt.Errorf("invalid transition %s -> %s for job %s", job.State, newState, requestID)
	}

	job.State = newState
	job.Message = message
	for _, opt := range opts {
		opt(&job)
	}
	if newState == domain.JobStateCompleted || newState == domain.JobStateFailed {
		job.CompletedAt = time.Now().Unix()
	}
	t.jobs[requestID] = job

	subscribers := make([]func(Event), 0, len(t.subscribers))
	for _, fn := range t.subscribers {
		subscribers = append(subscribers, fn)
	}
	t.mu.Unlock()

	event := Event{
		RequestID: job.RequestID,
		SessionID: job.SessionID,
		Filename:  job.Filename,
		State:     job.State,
		Message:   job.Message,
		PDFPath:   job.ArtifactPath,
		Error:     job.ErrorDetail,
		Warnings:  job.Warnings,
	}
	for _, fn := range subscribers {
		fn(event)
	}

	return nil
}

func (t *Tracker) Get(requestID string) (domain.Job, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	job, ok := t.jobs[requestID]
	if !ok {
		return domain.Job{}, fmt.Errorf("job %s not found", requestID)
	}
	return job, nil
}

// Subscribe registers fn for every transition of every job and returns an
// unsubscribe func. Callbacks run outside the tracker lock.
func (t *Tracker) Subscribe(fn func(Event)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextSub
	t.nextSub++
	t.subscribers[id] = fn

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subscribers, id)
	}
}
