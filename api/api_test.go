package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/corvid-labs/agentq"
	"github.com/corvid-labs/agentq/api"
	"github.com/corvid-labs/agentq/executor"
	"github.com/corvid-labs/agentq/hook"
	"github.com/corvid-labs/agentq/id"
	"github.com/corvid-labs/agentq/job"
	"github.com/corvid-labs/agentq/store/memory"
	"github.com/corvid-labs/agentq/stream"
)

type testEnv struct {
	server  *httptest.Server
	exec    *executor.Executor
	store   *memory.Store
	release chan struct{}
}

// setupAPI builds a full stack: memory store, hook registry with the
// stream broker registered, executor, and the HTTP server. The runner
// echoes the prompt unless it starts with "block:", in which case it
// waits for env.release.
func setupAPI(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.Default()
	s := memory.New()
	hooks := hook.NewRegistry(logger)
	broker := stream.NewBroker(logger)
	hooks.Register(broker)

	release := make(chan struct{})
	runner := executor.AgentRunnerFunc(func(ctx context.Context, _ *job.AgentConfig, prompt string) (any, error) {
		if strings.HasPrefix(prompt, "block:") {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return "echo: " + prompt, nil
	})

	cfg := agentq.DefaultConfig()
	cfg.CleanupInterval = 0

	exec := executor.New(s,
		executor.WithConfig(cfg),
		executor.WithLogger(logger),
		executor.WithHooks(hooks),
		executor.WithAgentRunner(runner),
	)
	if err := exec.Start(context.Background()); err != nil {
		t.Fatalf("executor start: %v", err)
	}

	srv := httptest.NewServer(api.New(exec, broker, api.WithLogger(logger)).Handler())

	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = exec.Stop(ctx)
	})

	return &testEnv{server: srv, exec: exec, store: s, release: release}
}

func (env *testEnv) submit(t *testing.T, body string) (*http.Response, *job.Job) {
	t.Helper()

	resp, err := http.Post(env.server.URL+"/v1/jobs", "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("submit request: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck // test teardown

	var j job.Job
	if resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(&j); err != nil {
			t.Fatalf("decode submit response: %v", err)
		}
	}
	return resp, &j
}

func (env *testEnv) waitForStatus(t *testing.T, jobID string, want job.Status) *job.Job {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		resp, err := http.Get(env.server.URL + "/v1/jobs/" + jobID)
		if err != nil {
			t.Fatalf("get request: %v", err)
		}
		var j job.Job
		decodeErr := json.NewDecoder(resp.Body).Decode(&j)
		resp.Body.Close() //nolint:errcheck // test loop

		if resp.StatusCode == http.StatusOK && decodeErr == nil && j.Status == want {
			return &j
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for status %q, last status %q (http %d)", want, j.Status, resp.StatusCode)
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestSubmitJob(t *testing.T) {
	env := setupAPI(t)

	resp, j := env.submit(t, `{"prompt":"write a haiku"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	if j.ID.IsNil() {
		t.Fatal("expected job ID in response")
	}
	if j.Prompt != "write a haiku" {
		t.Errorf("Prompt = %q, want %q", j.Prompt, "write a haiku")
	}

	got := env.waitForStatus(t, j.ID.String(), job.StatusSucceeded)
	if got.Result != "echo: write a haiku" {
		t.Errorf("Result = %v, want echo", got.Result)
	}
}

func TestSubmitJob_ValidationErrors(t *testing.T) {
	env := setupAPI(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing prompt", `{}`},
		{"empty prompt", `{"prompt":""}`},
		{"unknown field", `{"prompt":"hi","tempature":0.7}`},
		{"unknown agent field", `{"prompt":"hi","agent":{"nme":"writer"}}`},
		{"negative timeout", `{"prompt":"hi","timeout":-5}`},
		{"malformed json", `{"prompt":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := env.submit(t, tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
			}
		})
	}
}

func TestSubmitJob_Idempotent(t *testing.T) {
	env := setupAPI(t)

	resp1, first := env.submit(t, `{"prompt":"once","idempotency_key":"abc","idempotency_scope":"t1"}`)
	if resp1.StatusCode != http.StatusCreated {
		t.Fatalf("first submit status = %d, want %d", resp1.StatusCode, http.StatusCreated)
	}

	resp2, second := env.submit(t, `{"prompt":"once more","idempotency_key":"abc","idempotency_scope":"t1"}`)
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("resubmit status = %d, want %d", resp2.StatusCode, http.StatusOK)
	}
	if second.ID.String() != first.ID.String() {
		t.Errorf("resubmission returned job %s, want %s", second.ID, first.ID)
	}
}

func TestGetJob_Errors(t *testing.T) {
	env := setupAPI(t)

	resp, err := http.Get(env.server.URL + "/v1/jobs/job_01h455vb4pex5vsknk084sn02q")
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	resp.Body.Close() //nolint:errcheck // status check only
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown job status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}

	resp, err = http.Get(env.server.URL + "/v1/jobs/not-a-typeid")
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	resp.Body.Close() //nolint:errcheck // status check only
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed id status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestListJobs(t *testing.T) {
	env := setupAPI(t)

	_, a := env.submit(t, `{"prompt":"first","session_id":"sess-1"}`)
	_, b := env.submit(t, `{"prompt":"second","session_id":"sess-2"}`)
	env.waitForStatus(t, a.ID.String(), job.StatusSucceeded)
	env.waitForStatus(t, b.ID.String(), job.StatusSucceeded)

	// All jobs.
	resp, err := http.Get(env.server.URL + "/v1/jobs")
	if err != nil {
		t.Fatalf("list request: %v", err)
	}
	var all []*job.Job
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	resp.Body.Close() //nolint:errcheck // decoded above
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}

	// Session filter.
	resp, err = http.Get(env.server.URL + "/v1/jobs?session_id=sess-1")
	if err != nil {
		t.Fatalf("list request: %v", err)
	}
	var filtered []*job.Job
	if err := json.NewDecoder(resp.Body).Decode(&filtered); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	resp.Body.Close() //nolint:errcheck // decoded above
	if len(filtered) != 1 || filtered[0].SessionID != "sess-1" {
		t.Errorf("session filter returned %d jobs", len(filtered))
	}

	// Invalid status value.
	resp, err = http.Get(env.server.URL + "/v1/jobs?status=bogus")
	if err != nil {
		t.Fatalf("list request: %v", err)
	}
	resp.Body.Close() //nolint:errcheck // status check only
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid status filter = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestJobCounts(t *testing.T) {
	env := setupAPI(t)

	_, a := env.submit(t, `{"prompt":"done"}`)
	env.waitForStatus(t, a.ID.String(), job.StatusSucceeded)

	_, blocked := env.submit(t, `{"prompt":"block: held"}`)
	env.waitForStatus(t, blocked.ID.String(), job.StatusRunning)

	resp, err := http.Get(env.server.URL + "/v1/jobs/counts")
	if err != nil {
		t.Fatalf("counts request: %v", err)
	}
	var counts api.JobCountsResponse
	if err := json.NewDecoder(resp.Body).Decode(&counts); err != nil {
		t.Fatalf("decode counts: %v", err)
	}
	resp.Body.Close() //nolint:errcheck // decoded above

	if counts.Succeeded != 1 {
		t.Errorf("Succeeded = %d, want 1", counts.Succeeded)
	}
	if counts.Running != 1 {
		t.Errorf("Running = %d, want 1", counts.Running)
	}

	close(env.release)
	env.waitForStatus(t, blocked.ID.String(), job.StatusSucceeded)
}

func TestCancelJob(t *testing.T) {
	env := setupAPI(t)
	defer close(env.release)

	_, j := env.submit(t, `{"prompt":"block: cancel me"}`)
	env.waitForStatus(t, j.ID.String(), job.StatusRunning)

	resp, err := http.Post(env.server.URL+"/v1/jobs/"+j.ID.String()+"/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("cancel request: %v", err)
	}
	resp.Body.Close() //nolint:errcheck // status check only
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("cancel status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	env.waitForStatus(t, j.ID.String(), job.StatusCancelled)

	// Cancelling a terminal job conflicts.
	resp, err = http.Post(env.server.URL+"/v1/jobs/"+j.ID.String()+"/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("cancel request: %v", err)
	}
	resp.Body.Close() //nolint:errcheck // status check only
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("terminal cancel status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}

func TestDeleteJob(t *testing.T) {
	env := setupAPI(t)

	_, j := env.submit(t, `{"prompt":"ephemeral"}`)
	env.waitForStatus(t, j.ID.String(), job.StatusSucceeded)

	req, err := http.NewRequest(http.MethodDelete, env.server.URL+"/v1/jobs/"+j.ID.String(), nil)
	if err != nil {
		t.Fatalf("build delete request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete request: %v", err)
	}
	resp.Body.Close() //nolint:errcheck // status check only
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	resp, err = http.Get(env.server.URL + "/v1/jobs/" + j.ID.String())
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	resp.Body.Close() //nolint:errcheck // status check only
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestStreamJob(t *testing.T) {
	env := setupAPI(t)

	_, j := env.submit(t, `{"prompt":"block: stream me"}`)
	env.waitForStatus(t, j.ID.String(), job.StatusRunning)

	resp, err := http.Get(env.server.URL + "/v1/jobs/" + j.ID.String() + "/stream")
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck // test teardown

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", got)
	}

	events := make(chan string, 32)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "event: ") {
				events <- strings.TrimPrefix(line, "event: ")
			}
		}
		close(events)
	}()

	// The first frame is always the snapshot.
	select {
	case first := <-events:
		if first != "snapshot" {
			t.Fatalf("first event = %q, want snapshot", first)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for snapshot event")
	}

	// Let the job finish and expect the terminal event to close the stream.
	close(env.release)

	deadline := time.After(5 * time.Second)
	sawSucceeded := false
	for !sawSucceeded {
		select {
		case evt, open := <-events:
			if !open {
				t.Fatal("stream closed before terminal event")
			}
			if evt == string(stream.EventJobSucceeded) {
				sawSucceeded = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for terminal event")
		}
	}
}

func TestStreamJob_TerminalSnapshotOnly(t *testing.T) {
	env := setupAPI(t)

	_, j := env.submit(t, `{"prompt":"already done"}`)
	env.waitForStatus(t, j.ID.String(), job.StatusSucceeded)

	resp, err := http.Get(env.server.URL + "/v1/jobs/" + j.ID.String() + "/stream")
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck // test teardown

	scanner := bufio.NewScanner(resp.Body)
	var eventLines []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			eventLines = append(eventLines, strings.TrimPrefix(line, "event: "))
		}
	}

	// A terminal job gets exactly one snapshot frame, then the stream ends.
	if len(eventLines) != 1 || eventLines[0] != "snapshot" {
		t.Errorf("events = %v, want [snapshot]", eventLines)
	}
}

// gatedStore wraps a job.Store and, once armed, runs a callback during
// the next Get of the target job and returns the snapshot taken before
// the callback. It reproduces a job turning terminal while the stream
// handler is reading its snapshot.
type gatedStore struct {
	job.Store
	mu     sync.Mutex
	target string
	onGet  func()
}

func (s *gatedStore) arm(jobID string, onGet func()) {
	s.mu.Lock()
	s.target = jobID
	s.onGet = onGet
	s.mu.Unlock()
}

func (s *gatedStore) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	j, err := s.Store.Get(ctx, jobID)

	s.mu.Lock()
	onGet := s.onGet
	if err != nil || jobID.String() != s.target {
		onGet = nil
	} else {
		s.onGet = nil
	}
	s.mu.Unlock()

	if onGet != nil {
		onGet()
	}
	return j, err
}

func TestStreamJob_TerminalDuringSnapshot(t *testing.T) {
	logger := slog.Default()
	base := memory.New()
	gated := &gatedStore{Store: base}

	hooks := hook.NewRegistry(logger)
	broker := stream.NewBroker(logger)
	hooks.Register(broker)

	release := make(chan struct{})
	runner := executor.AgentRunnerFunc(func(ctx context.Context, _ *job.AgentConfig, _ string) (any, error) {
		select {
		case <-release:
			return "done", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	cfg := agentq.DefaultConfig()
	cfg.CleanupInterval = 0

	exec := executor.New(gated,
		executor.WithConfig(cfg),
		executor.WithLogger(logger),
		executor.WithHooks(hooks),
		executor.WithAgentRunner(runner),
	)
	if err := exec.Start(context.Background()); err != nil {
		t.Fatalf("executor start: %v", err)
	}
	srv := httptest.NewServer(api.New(exec, broker, api.WithLogger(logger)).Handler())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = exec.Stop(ctx)
	})

	j, err := exec.Submit(context.Background(), job.New("finish mid-snapshot"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Wait for running via the underlying store so the gate stays unarmed.
	deadline := time.Now().Add(5 * time.Second)
	for {
		got, getErr := base.Get(context.Background(), j.ID)
		if getErr == nil && got.Status == job.StatusRunning {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for running")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// While the stream handler reads its snapshot, finish the job and wait
	// for the terminal state to persist. The handler then holds a stale
	// running snapshot and must rely on its subscription for the terminal
	// event.
	gated.arm(j.ID.String(), func() {
		close(release)
		wait := time.Now().Add(5 * time.Second)
		for time.Now().Before(wait) {
			got, getErr := base.Get(context.Background(), j.ID)
			if getErr == nil && got.Terminal() {
				return
			}
			time.Sleep(2 * time.Millisecond)
		}
	})

	resp, err := http.Get(srv.URL + "/v1/jobs/" + j.ID.String() + "/stream")
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck // test teardown

	events := make(chan string, 32)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "event: ") {
				events <- strings.TrimPrefix(line, "event: ")
			}
		}
		close(events)
	}()

	var seen []string
	guard := time.After(10 * time.Second)
loop:
	for {
		select {
		case evt, open := <-events:
			if !open {
				break loop
			}
			seen = append(seen, evt)
		case <-guard:
			t.Fatalf("stream never terminated; events so far: %v", seen)
		}
	}

	if len(seen) == 0 || seen[0] != "snapshot" {
		t.Fatalf("events = %v, want snapshot first", seen)
	}
	sawTerminal := false
	for _, evt := range seen {
		if evt == string(stream.EventJobSucceeded) {
			sawTerminal = true
		}
	}
	if !sawTerminal {
		t.Errorf("events = %v, want a %s event", seen, stream.EventJobSucceeded)
	}
}

func TestSubmitWithAgentConfig(t *testing.T) {
	env := setupAPI(t)

	body := `{"prompt":"analyze","agent":{"name":"analyst","model":"gpt-4o-mini","instructions":"be brief","temperature":0.2}}`
	resp, j := env.submit(t, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	got := env.waitForStatus(t, j.ID.String(), job.StatusSucceeded)
	if got.Agent == nil || got.Agent.Name != "analyst" {
		t.Errorf("Agent = %+v, want analyst config", got.Agent)
	}
}
