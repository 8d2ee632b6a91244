package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattermost/mattermost-plugin-safewalk/server/alert"
	"github.com/mattermost/mattermost-plugin-safewalk/server/logger"
)

const testScenario = `
destination: Home
origin: "38.5,-120.2"
interval: 10ms
samples:
  - "38.501,-120.2"
  - "38.502,-120.2"
  - "38.503,-120.2"
`

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "walk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newSafetyServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/get_directions", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"overview_polyline": "_p~iF~ps|U_ulLnnqC_mqNvxq`@",
			"destination_lat":   43.252,
			"destination_lng":   -126.453,
		})
	})
	mux.HandleFunc("/check_crime", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "danger",
			"nearby_crimes": []map[string]interface{}{
				{"id": "c1", "NearestIntersectionLocation": "Main & 1st", "rating": "High", "crime_rate": 4.5, "distance": 80.0},
			},
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestRun(t *testing.T) {
	t.Run("replays the walk and acknowledges prompts", func(t *testing.T) {
		server := newSafetyServer(t)

		var out bytes.Buffer
		err := run(context.Background(), options{
			scenario:   writeScenario(t, testScenario),
			serviceURL: server.URL,
			timeout:    time.Second,
			settle:     300 * time.Millisecond,
			autoAck:    true,
		}, strings.NewReader(""), &out, logger.Nop())
		require.NoError(t, err)

		assert.Contains(t, out.String(), "Tracking walk to Home: 3 waypoints")
		assert.Equal(t, 1, strings.Count(out.String(), "Crime alert near Main & 1st"), "incident shown once")
		assert.Contains(t, out.String(), "Walk ended: 1 alert(s) acknowledged")
	})

	t.Run("prints polyline", func(t *testing.T) {
		var out bytes.Buffer
		err := run(context.Background(), options{
			scenario:      writeScenario(t, "destination: Home\nsamples: [\"38.5,-120.2\", \"40.7,-120.95\", \"43.252,-126.453\"]\n"),
			printPolyline: true,
		}, nil, &out, logger.Nop())
		require.NoError(t, err)
		assert.Equal(t, "_p~iF~ps|U_ulLnnqC_mqNvxq`@\n", out.String())
	})

	t.Run("requires a service URL", func(t *testing.T) {
		err := run(context.Background(), options{scenario: writeScenario(t, testScenario)}, nil, &bytes.Buffer{}, logger.Nop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), serviceURLEnv)
	})

	t.Run("route failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		err := run(context.Background(), options{
			scenario:   writeScenario(t, testScenario),
			serviceURL: server.URL,
			timeout:    time.Second,
			autoAck:    true,
		}, nil, &bytes.Buffer{}, logger.Nop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to start walk")
	})
}

type fakeWalker struct {
	mu           sync.Mutex
	shared       []string
	acknowledged []string
}

func (w *fakeWalker) Acknowledge(promptID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.acknowledged = append(w.acknowledged, promptID)
	return nil
}

func (w *fakeWalker) ShareLocation(_ context.Context, promptID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.shared = append(w.shared, promptID)
	return alert.ErrUnknownPrompt
}

func TestDriveWalk(t *testing.T) {
	t.Run("share then acknowledge until settled", func(t *testing.T) {
		term := NewTerminal(&bytes.Buffer{}, readLines(strings.NewReader("s\na\n")), false)
		require.NoError(t, term.ShowPrompt(testPrompt("p1")))
		require.NoError(t, term.ShowPrompt(testPrompt("p2")))

		finished := make(chan struct{})
		close(finished)

		walker := &fakeWalker{}
		acknowledged := driveWalk(context.Background(), walker, term, finished, 100*time.Millisecond, logger.Nop())

		assert.Equal(t, 2, acknowledged)
		assert.Equal(t, []string{"p1"}, walker.shared)
		assert.Equal(t, []string{"p1", "p2"}, walker.acknowledged)
	})

	t.Run("stops on arrival", func(t *testing.T) {
		term := NewTerminal(&bytes.Buffer{}, nil, true)
		require.NoError(t, term.ShowNotice(alert.Notice{Kind: alert.NoticeArrived, Message: "You have arrived."}))

		done := make(chan struct{})
		go func() {
			driveWalk(context.Background(), &fakeWalker{}, term, nil, time.Hour, logger.Nop())
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("driveWalk did not return after arrival")
		}
	})

	t.Run("stops on cancel", func(t *testing.T) {
		term := NewTerminal(&bytes.Buffer{}, nil, true)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.Zero(t, driveWalk(ctx, &fakeWalker{}, term, nil, time.Hour, logger.Nop()))
	})
}
