// -----------------------------------------------------------------------
// Consumer - Dual-channel job progress tracking for API clients
// -----------------------------------------------------------------------

// Package progress tracks a job to completion over two channels at once: a
// WebSocket push stream for low latency and a polling fallback for
// reliability. Push delivery is at-most-once with no replay, so polling is
// what guarantees the terminal state is never missed; whichever channel
// reports it first wins.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultPollInterval is the fallback polling cadence
const DefaultPollInterval = 2 * time.Second

// JobSnapshot is the client-side view of a job
type JobSnapshot struct {
	ID       string          `json:"id"`
	Kind     string          `json:"kind"`
	Status   string          `json:"status"`
	Progress int             `json:"progress"`
	Phase    string          `json:"phase"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Terminal reports whether the snapshot is in a terminal state
func (s JobSnapshot) Terminal() bool {
	switch s.Status {
	case "completed", "failed", "cancelled":
		return true
	}
	return false
}

// Update is one observed change of the tracked job. Source names the channel
// that delivered it ("push" or "poll").
type Update struct {
	Source string
	Job    JobSnapshot
}

// Consumer watches jobs on an engine instance
type Consumer struct {
	baseURL      string
	http         *http.Client
	pollInterval time.Duration
}

// Option customizes a Consumer
type Option func(*Consumer)

// WithPollInterval overrides the fallback polling cadence
func WithPollInterval(interval time.Duration) Option {
	return func(c *Consumer) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// WithHTTPClient overrides the HTTP client used for polling
func WithHTTPClient(client *http.Client) Option {
	return func(c *Consumer) {
		if client != nil {
			c.http = client
		}
	}
}

// NewConsumer creates a consumer for the engine at baseURL, e.g.
// "http://localhost:8085"
func NewConsumer(baseURL string, opts ...Option) *Consumer {
	c := &Consumer{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &http.Client{Timeout: 10 * time.Second},
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wsMessage mirrors the engine's push-channel envelope
type wsMessage struct {
	Type    string          `json:"type"`
	JobID   string          `json:"job_id"`
	Payload json.RawMessage `json:"payload"`
}

type statusPayload struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type progressPayload struct {
	JobID    string `json:"job_id"`
	Progress int    `json:"progress"`
	Phase    string `json:"phase"`
}

type completedPayload struct {
	JobID  string          `json:"job_id"`
	Result json.RawMessage `json:"result"`
}

type failedPayload struct {
	JobID string `json:"job_id"`
	Error string `json:"error"`
}

// Watch tracks one job until it reaches a terminal state or ctx is
// cancelled. The returned channel delivers merged updates from both channels
// and is closed after the terminal update (or on ctx cancellation). A dead or
// unreachable socket degrades to polling alone; it never fails the watch.
func (c *Consumer) Watch(ctx context.Context, jobID string) (<-chan Update, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	updates := make(chan Update, 16)
	w := &watcher{
		consumer: c,
		jobID:    jobID,
		updates:  updates,
	}
	go w.run(ctx)

	return updates, nil
}

// watcher merges push and poll observations for one job. All state access
// goes through mu; done flips exactly once, on the first terminal update.
type watcher struct {
	consumer *Consumer
	jobID    string
	updates  chan Update

	mu      sync.Mutex
	current JobSnapshot
	done    bool
}

func (w *watcher) run(ctx context.Context) {
	defer close(w.updates)

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	finished := make(chan struct{})
	var once sync.Once
	finish := func() {
		once.Do(func() { close(finished) })
	}

	readerDone := make(chan struct{})
	conn := w.dialSocket(watchCtx)
	if conn != nil {
		go func() {
			defer close(readerDone)
			w.readSocket(watchCtx, conn, finish)
		}()
	} else {
		close(readerDone)
	}

	// The socket reader must be gone before the deferred close of the updates
	// channel runs, or a push delivery could race the close
	defer func() {
		cancel()
		if conn != nil {
			conn.Close()
		}
		<-readerDone
	}()

	// Poll immediately so a job that finished before Watch was called is
	// still observed
	w.pollOnce(watchCtx, finish)

	ticker := time.NewTicker(w.consumer.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-watchCtx.Done():
			return
		case <-finished:
			return
		case <-ticker.C:
			w.pollOnce(watchCtx, finish)
		}
	}
}

// dialSocket connects and subscribes to the job's push stream. Returns nil
// when the socket is unavailable.
func (w *watcher) dialSocket(ctx context.Context) *websocket.Conn {
	wsURL := strings.Replace(w.consumer.baseURL, "http", "ws", 1) + "/ws"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil
	}

	sub := map[string]string{"action": "subscribe", "job_id": w.jobID}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil
	}

	return conn
}

// readSocket consumes push events until the connection drops. The run loop
// owns the connection and closes it to unblock ReadJSON when the watch ends.
func (w *watcher) readSocket(ctx context.Context, conn *websocket.Conn, finish func()) {
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.JobID != "" && msg.JobID != w.jobID {
			continue
		}

		switch msg.Type {
		case "status_changed":
			var p statusPayload
			if json.Unmarshal(msg.Payload, &p) != nil {
				continue
			}
			w.apply(ctx, "push", func(s *JobSnapshot) { s.Status = p.Status }, finish)
		case "progress":
			var p progressPayload
			if json.Unmarshal(msg.Payload, &p) != nil {
				continue
			}
			w.apply(ctx, "push", func(s *JobSnapshot) {
				if p.Progress > s.Progress {
					s.Progress = p.Progress
				}
				s.Phase = p.Phase
			}, finish)
		case "completed":
			var p completedPayload
			if json.Unmarshal(msg.Payload, &p) != nil {
				continue
			}
			w.apply(ctx, "push", func(s *JobSnapshot) {
				s.Status = "completed"
				s.Progress = 100
				s.Result = p.Result
			}, finish)
		case "failed":
			var p failedPayload
			if json.Unmarshal(msg.Payload, &p) != nil {
				continue
			}
			w.apply(ctx, "push", func(s *JobSnapshot) {
				s.Status = "failed"
				s.Error = p.Error
			}, finish)
		}
	}
}

func (w *watcher) pollOnce(ctx context.Context, finish func()) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.consumer.baseURL+"/api/jobs/"+w.jobID, nil)
	if err != nil {
		return
	}

	resp, err := w.consumer.http.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return
	}

	var snapshot JobSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return
	}

	w.apply(ctx, "poll", func(s *JobSnapshot) {
		// A stale poll must not roll progress backwards past a fresher push
		if snapshot.Progress < s.Progress && !snapshot.Terminal() {
			snapshot.Progress = s.Progress
		}
		*s = snapshot
	}, finish)
}

// apply mutates the merged snapshot and emits an update. The first terminal
// observation wins: later ones are dropped and the watch ends.
func (w *watcher) apply(ctx context.Context, source string, mutate func(*JobSnapshot), finish func()) {
	w.mu.Lock()
	if w.done {
		w.mu.Unlock()
		return
	}

	if w.current.ID == "" {
		w.current.ID = w.jobID
	}
	mutate(&w.current)
	update := Update{Source: source, Job: w.current}
	terminal := w.current.Terminal()
	if terminal {
		w.done = true
	}
	w.mu.Unlock()

	if terminal {
		// A slow receiver drops intermediate updates, never the terminal one.
		// An abandoned watch (ctx cancelled, channel never drained) must not
		// wedge the watcher on this send; the update is forfeit instead.
		select {
		case w.updates <- update:
		case <-ctx.Done():
		}
		finish()
		return
	}

	select {
	case w.updates <- update:
	default:
	}
}
