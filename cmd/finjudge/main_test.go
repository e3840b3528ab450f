package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"

	"github.com/ahrav/finjudge/internal/audit"
	"github.com/ahrav/finjudge/internal/configuration"
	"github.com/ahrav/finjudge/internal/domain"
	"github.com/ahrav/finjudge/internal/evaluation"
	"github.com/ahrav/finjudge/internal/judge"
	"github.com/ahrav/finjudge/internal/report"
	"github.com/ahrav/finjudge/internal/worker"
	"github.com/ahrav/finjudge/internal/workflow"
)

func judgeServer(t *testing.T, healthStatus int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(healthStatus)
		case "/judge/semantic_equivalence":
			fmt.Fprint(w, `{"score":0.9,"confidence":0.9}`)
		case "/judge/numeric_tolerance":
			fmt.Fprint(w, `{"score":1,"confidence":0.9,"failure_reason":"none"}`)
		case "/judge/contradiction":
			fmt.Fprint(w, `{"score":1,"confidence":0.9,"violated":false}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fixture struct {
	dir        string
	configPath string
	dataset    string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return newFixtureWithHealth(t, http.StatusOK)
}

func newFixtureWithHealth(t *testing.T, healthStatus int) fixture {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := t.TempDir()
	srv := judgeServer(t, healthStatus)

	cfg := fmt.Sprintf(`judges:
  transport: http
  base_url: %s
trace_store:
  kind: jsonl
  dir: %s
runner:
  concurrency: 2
  task_timeout: 10s
observability:
  log_level: error
`, srv.URL, filepath.Join(dir, "traces"))
	configPath := filepath.Join(dir, "finjudge.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0o644))

	tasks := `{"id":"t1","question":"Revenue?","gold_answer":"$5.2B","model_answer":"$5.2 billion","rubric":[],"difficulty_level":"Easy","question_type":"Financial Modeling"}

{"id":"t2","question":"Revenue?","gold_answer":"$5.2B","model_answer":"about $5.2 billion","rubric":[],"difficulty_level":"Hard","question_type":"Financial Modeling"}
`
	dataset := filepath.Join(dir, "tasks.jsonl")
	require.NoError(t, os.WriteFile(dataset, []byte(tasks), 0o644))

	return fixture{dir: dir, configPath: configPath, dataset: dataset}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRun_ReportReplay(t *testing.T) {
	f := newFixture(t)

	out, err := execute(t, "run", "-c", f.configPath, "--dataset", f.dataset, "--run-id", "run-1")
	require.NoError(t, err)

	var rep report.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "run-1", rep.RunID)
	assert.Equal(t, 2, rep.Overall.Count)
	assert.Contains(t, rep.ByDifficulty, "Easy")
	assert.Contains(t, rep.ByDifficulty, "Hard")

	out, err = execute(t, "report", "-c", f.configPath, "--run-id", "run-1")
	require.NoError(t, err)
	var again report.Report
	require.NoError(t, json.Unmarshal([]byte(out), &again))
	assert.Equal(t, rep.Overall, again.Overall)

	out, err = execute(t, "replay", "-c", f.configPath, "--run-id", "run-1")
	require.NoError(t, err)
	assert.Contains(t, out, "2 traces replayed, 0 mismatches")

	out, err = execute(t, "replay", "-c", f.configPath, "--run-id", "run-1", "--task-id", "t2")
	require.NoError(t, err)
	assert.Contains(t, out, "1 traces replayed, 0 mismatches")
}

func TestRun_WritesReportFile(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.dir, "report.json")

	out, err := execute(t, "run", "-c", f.configPath, "--dataset", f.dataset, "--limit", "1", "-o", path)
	require.NoError(t, err)
	assert.Empty(t, out)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var rep report.Report
	require.NoError(t, json.Unmarshal(raw, &rep))
	assert.Equal(t, 1, rep.Overall.Count)
	assert.NotEmpty(t, rep.RunID, "a run id is generated when none is given")
}

func TestReplay_DetectsTamperedTrace(t *testing.T) {
	f := newFixture(t)
	_, err := execute(t, "run", "-c", f.configPath, "--dataset", f.dataset, "--run-id", "run-1")
	require.NoError(t, err)

	path := filepath.Join(f.dir, "traces", "run-1", "traces.jsonl")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var rewritten bytes.Buffer
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		if rec["task_id"] == "t1" {
			rec["score"].(map[string]any)["final_score"] = 0.1
		}
		line, err := json.Marshal(rec)
		require.NoError(t, err)
		rewritten.Write(line)
		rewritten.WriteByte('\n')
	}
	require.NoError(t, os.WriteFile(path, rewritten.Bytes(), 0o644))

	out, err := execute(t, "replay", "-c", f.configPath, "--run-id", "run-1")
	assert.ErrorIs(t, err, errReplayFailed)
	assert.Contains(t, out, "MISMATCH t1")
	assert.Contains(t, out, "1 mismatches")
}

func TestCommandErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"run without dataset", []string{"run", "-c", f.configPath}, `required flag(s) "dataset" not set`},
		{"missing dataset file", []string{"run", "-c", f.configPath, "--dataset", filepath.Join(f.dir, "nope.jsonl")}, "nope.jsonl"},
		{"run with path run id", []string{"run", "-c", f.configPath, "--dataset", f.dataset, "--run-id", ".."}, "invalid run id"},
		{"report with path run id", []string{"report", "-c", f.configPath, "--run-id", "../x"}, "invalid run id"},
		{"report without run id", []string{"report", "-c", f.configPath}, `required flag(s) "run-id" not set`},
		{"bad log level", []string{"report", "-c", f.configPath, "--run-id", "x", "--log-level", "loud"}, "loud"},
		{"missing config", []string{"report", "-c", filepath.Join(f.dir, "missing.yaml"), "--run-id", "x"}, "missing.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), "error %q should mention %q", err, tt.wantErr)
		})
	}
}

func TestStability_ReportsEveryRepetition(t *testing.T) {
	f := newFixture(t)

	out, err := execute(t, "stability", "-c", f.configPath, "--dataset", f.dataset, "--run-id", "stab", "--repeats", "2")
	require.NoError(t, err)

	var rep evaluation.StabilityReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, []string{"stab-r1", "stab-r2"}, rep.RunIDs)
	require.Len(t, rep.Tasks, 2)
	for _, ts := range rep.Tasks {
		assert.Len(t, ts.Scores, 2)
		assert.True(t, ts.Stable, "a deterministic judge server gives identical scores")
	}
	assert.Equal(t, 1.0, rep.StableFraction)

	out, err = execute(t, "report", "-c", f.configPath, "--run-id", "stab-r2")
	require.NoError(t, err)
	var again report.Report
	require.NoError(t, json.Unmarshal([]byte(out), &again))
	assert.Equal(t, 2, again.Overall.Count)
}

func TestRun_RejectsRunIDOutsideStore(t *testing.T) {
	f := newFixture(t)

	_, err := execute(t, "run", "-c", f.configPath, "--dataset", f.dataset, "--run-id", "..")
	require.ErrorIs(t, err, domain.ErrInvalidRunID)

	_, statErr := os.Stat(filepath.Join(f.dir, "traces.jsonl"))
	assert.True(t, errors.Is(statErr, fs.ErrNotExist), "nothing is written beside the store root")
}

func TestRun_TemporalChecksJudgesBeforeDialing(t *testing.T) {
	// No Temporal server is running: reaching the dial would fail differently.
	f := newFixtureWithHealth(t, http.StatusServiceUnavailable)

	_, err := execute(t, "run", "-c", f.configPath, "--dataset", f.dataset, "--run-id", "run-t", "--temporal")
	require.ErrorIs(t, err, evaluation.ErrJudgesUnreachable)
	assert.ErrorIs(t, err, judge.ErrUnhealthy)

	_, statErr := os.Stat(filepath.Join(f.dir, "traces", "run-t"))
	assert.True(t, errors.Is(statErr, fs.ErrNotExist), "no manifest is written for an aborted run")
}

// fakeStarter completes every workflow with a trace built by result, or fails
// it when result returns an error.
type fakeStarter struct {
	mu      sync.Mutex
	started []workflow.EvaluateTaskRequest
	result  func(workflow.EvaluateTaskRequest) (*domain.Trace, error)
}

func (s *fakeStarter) ExecuteWorkflow(_ context.Context, opts client.StartWorkflowOptions, _ any, args ...any) (client.WorkflowRun, error) {
	req := args[0].(workflow.EvaluateTaskRequest)
	s.mu.Lock()
	s.started = append(s.started, req)
	s.mu.Unlock()
	trace, err := s.result(req)
	return &fakeRun{id: opts.ID, trace: trace, err: err}, nil
}

type fakeRun struct {
	client.WorkflowRun
	id    string
	trace *domain.Trace
	err   error
}

func (r *fakeRun) GetID() string { return r.id }

func (r *fakeRun) Get(_ context.Context, valuePtr any) error {
	if r.err != nil {
		return r.err
	}
	*valuePtr.(*domain.Trace) = *r.trace
	return nil
}

func TestSubmitWorkflows_WritesManifest(t *testing.T) {
	f := newFixture(t)
	cfg, err := configuration.Load(f.configPath)
	require.NoError(t, err)
	g := &globals{cfg: cfg}
	res, err := worker.Initialize(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Close() })

	tasks := []domain.Task{
		{ID: "t1", GoldAnswer: "$1M", ModelAnswer: "$1 million"},
		{ID: "t2", GoldAnswer: "$2M", ModelAnswer: "$20 million", Source: domain.SourceAdversarial},
	}
	starter := &fakeStarter{result: func(req workflow.EvaluateTaskRequest) (*domain.Trace, error) {
		if req.Task.ID == "t2" {
			return nil, errors.New("workflow timed out")
		}
		return &domain.Trace{RunID: req.RunID, TaskID: req.Task.ID, Task: req.Task}, nil
	}}
	opts := &runOptions{runID: "run-w", datasetPath: f.dataset}

	traces, err := submitWorkflows(context.Background(), starter, g, res, opts, tasks, 2)
	require.NoError(t, err)
	require.Len(t, traces, 1)
	assert.Equal(t, "t1", traces[0].TaskID)
	require.Len(t, starter.started, 2)
	for _, req := range starter.started {
		assert.Equal(t, "run-w", req.RunID)
		assert.Equal(t, res.Judges.Versions(), req.JudgeVersions)
	}

	ms, ok := res.Store.(audit.ManifestStore)
	require.True(t, ok)
	m, err := ms.GetManifest(context.Background(), "run-w")
	require.NoError(t, err)
	assert.Equal(t, f.dataset, m.DatasetPath)
	assert.Equal(t, cfg.Scoring, m.ScoringConfig)
	assert.Equal(t, 2, m.TotalTasks)
	assert.Equal(t, 1, m.CanonicalTasks)
	assert.Equal(t, 1, m.AdversarialTasks)
	assert.Equal(t, 1, m.CompletedTasks)
	assert.Equal(t, 1, m.FailedTasks)
	assert.False(t, m.FinishedAt.IsZero())
}
