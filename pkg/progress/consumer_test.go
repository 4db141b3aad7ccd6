package progress

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// collect drains the update channel until it closes or the deadline expires
func collect(t *testing.T, updates <-chan Update, timeout time.Duration) []Update {
	t.Helper()

	var got []Update
	deadline := time.After(timeout)
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return got
			}
			got = append(got, u)
		case <-deadline:
			t.Fatalf("updates channel did not close in time (got %d updates)", len(got))
		}
	}
}

func TestWatchPollFallbackDetectsTerminal(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/jobs/job_a", func(w http.ResponseWriter, r *http.Request) {
		n := polls.Add(1)
		snapshot := JobSnapshot{ID: "job_a", Kind: "screening", Status: "running", Progress: 40, Phase: "fetch_data"}
		if n >= 2 {
			snapshot.Status = "completed"
			snapshot.Progress = 100
			snapshot.Result = json.RawMessage(`{"matched":3}`)
		}
		json.NewEncoder(w).Encode(snapshot)
	})
	// No /ws route: the socket is unavailable and polling carries the watch

	ts := httptest.NewServer(mux)
	defer ts.Close()

	consumer := NewConsumer(ts.URL, WithPollInterval(30*time.Millisecond))
	updates, err := consumer.Watch(context.Background(), "job_a")
	require.NoError(t, err)

	got := collect(t, updates, 5*time.Second)
	require.NotEmpty(t, got)

	final := got[len(got)-1]
	assert.Equal(t, "poll", final.Source)
	assert.Equal(t, "completed", final.Job.Status)
	assert.Equal(t, 100, final.Job.Progress)
	assert.JSONEq(t, `{"matched":3}`, string(final.Job.Result))
}

func TestWatchPushDeliversCompletion(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/jobs/job_b", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(JobSnapshot{ID: "job_b", Status: "running", Progress: 10})
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		// Wait for the subscribe message, then stream events
		var sub map[string]string
		require.NoError(t, conn.ReadJSON(&sub))
		require.Equal(t, "job_b", sub["job_id"])

		conn.WriteJSON(map[string]interface{}{
			"type":    "progress",
			"job_id":  "job_b",
			"payload": map[string]interface{}{"job_id": "job_b", "progress": 60, "phase": "score"},
		})
		conn.WriteJSON(map[string]interface{}{
			"type":    "completed",
			"job_id":  "job_b",
			"payload": map[string]interface{}{"job_id": "job_b", "result": map[string]int{"matched": 7}},
		})

		// Keep the socket open until the client walks away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	consumer := NewConsumer(ts.URL, WithPollInterval(time.Hour))
	updates, err := consumer.Watch(context.Background(), "job_b")
	require.NoError(t, err)

	got := collect(t, updates, 5*time.Second)
	require.NotEmpty(t, got)

	final := got[len(got)-1]
	assert.Equal(t, "push", final.Source)
	assert.Equal(t, "completed", final.Job.Status)
	assert.JSONEq(t, `{"matched":7}`, string(final.Job.Result))

	var sawProgress bool
	for _, u := range got {
		if u.Job.Phase == "score" && u.Job.Progress == 60 {
			sawProgress = true
		}
	}
	assert.True(t, sawProgress, "expected the pushed progress update")
}

func TestWatchEmitsExactlyOneTerminal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/jobs/job_c", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(JobSnapshot{ID: "job_c", Status: "completed", Progress: 100})
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub map[string]string
		conn.ReadJSON(&sub)
		conn.WriteJSON(map[string]interface{}{
			"type":    "completed",
			"job_id":  "job_c",
			"payload": map[string]interface{}{"job_id": "job_c", "result": nil},
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	consumer := NewConsumer(ts.URL, WithPollInterval(20*time.Millisecond))
	updates, err := consumer.Watch(context.Background(), "job_c")
	require.NoError(t, err)

	got := collect(t, updates, 5*time.Second)

	terminals := 0
	for _, u := range got {
		if u.Job.Terminal() {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals, "exactly one terminal update regardless of channel")
}

func TestWatchCancelledStatusEndsWatch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/jobs/job_d", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(JobSnapshot{ID: "job_d", Status: "cancelled"})
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	consumer := NewConsumer(ts.URL, WithPollInterval(20*time.Millisecond))
	updates, err := consumer.Watch(context.Background(), "job_d")
	require.NoError(t, err)

	got := collect(t, updates, 5*time.Second)
	require.NotEmpty(t, got)
	assert.Equal(t, "cancelled", got[len(got)-1].Job.Status)
}

func TestWatchContextCancellationClosesChannel(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/jobs/job_e", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(JobSnapshot{ID: "job_e", Status: "running", Progress: 5})
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	consumer := NewConsumer(ts.URL, WithPollInterval(20*time.Millisecond))
	updates, err := consumer.Watch(ctx, "job_e")
	require.NoError(t, err)

	// Let a few polls land, then abandon the watch
	time.Sleep(80 * time.Millisecond)
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-updates:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after context cancellation")
		}
	}
}

func TestWatchAbandonedReceiverClosesAfterCancel(t *testing.T) {
	// The receiver never drains the channel: the buffer fills with progress
	// updates, the job reaches a terminal state, and only then is the watch
	// abandoned. The watcher must still wind down and close the channel
	// instead of blocking forever on the terminal send.
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/jobs/job_h", func(w http.ResponseWriter, r *http.Request) {
		n := polls.Add(1)
		snapshot := JobSnapshot{ID: "job_h", Status: "running", Progress: int(n), Phase: "fetch_data"}
		if n > 20 {
			snapshot.Status = "completed"
			snapshot.Progress = 100
		}
		json.NewEncoder(w).Encode(snapshot)
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	consumer := NewConsumer(ts.URL, WithPollInterval(10*time.Millisecond))
	updates, err := consumer.Watch(ctx, "job_h")
	require.NoError(t, err)

	// Wait for the terminal poll to land, then give the watcher a moment to
	// reach the send, all without reading a single update
	require.Eventually(t, func() bool { return polls.Load() > 20 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return
			}
			assert.False(t, u.Job.Terminal(), "abandoned watch must not deliver a terminal update")
		case <-deadline:
			t.Fatal("updates channel did not close after context cancellation")
		}
	}
}

func TestWatchRequiresJobID(t *testing.T) {
	consumer := NewConsumer("http://localhost:0")
	_, err := consumer.Watch(context.Background(), "")
	assert.Error(t, err)
}

func TestProgressNeverRollsBack(t *testing.T) {
	mux := http.NewServeMux()
	var polls atomic.Int32
	mux.HandleFunc("/api/jobs/job_f", func(w http.ResponseWriter, r *http.Request) {
		// The poll endpoint lags behind the push channel
		n := polls.Add(1)
		snapshot := JobSnapshot{ID: "job_f", Status: "running", Progress: 30, Phase: "fetch_data"}
		if n >= 6 {
			snapshot.Status = "completed"
			snapshot.Progress = 100
		}
		json.NewEncoder(w).Encode(snapshot)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub map[string]string
		conn.ReadJSON(&sub)
		conn.WriteJSON(map[string]interface{}{
			"type":    "progress",
			"job_id":  "job_f",
			"payload": map[string]interface{}{"job_id": "job_f", "progress": 80, "phase": "score"},
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	consumer := NewConsumer(ts.URL, WithPollInterval(25*time.Millisecond))
	updates, err := consumer.Watch(context.Background(), "job_f")
	require.NoError(t, err)

	got := collect(t, updates, 5*time.Second)

	last := -1
	for _, u := range got {
		assert.GreaterOrEqual(t, u.Job.Progress, last, "progress must never decrease")
		last = u.Job.Progress
	}
}
