package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func netflixCSV(t *testing.T) string {
	t.Helper()
	p, err := filepath.Abs("../../pkg/io/csvio/testdata/netflix_titles.csv")
	require.NoError(t, err)
	return p
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestVersion(t *testing.T) {
	out, _, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "catalogetl "+version+"\n", out)
}

func TestRunConfigs(t *testing.T) {
	dir := t.TempDir()
	good := writeConfig(t, "movies.yaml", fmt.Sprintf(`
input:
  path: %s
output:
  path: %s
steps:
  - filter: {column: type, op: eq, value: Movie}
  - select: {columns: [show_id, title]}
  - profile: {top_k: 1}
`, netflixCSV(t), filepath.Join(dir, "movies.csv")))

	out, logs, err := runCLI(t, "run", "--summary", "--log-format", "json", "-b", "2", good)
	require.NoError(t, err, logs)
	data, err := os.ReadFile(filepath.Join(dir, "movies.csv"))
	require.NoError(t, err)
	assert.Equal(t, "show_id,title\ns1,Dick Johnson Is Dead\ns7,My Little Pony: A New Generation\n", string(data))
	assert.Contains(t, out, "Profile Summary (2 rows, 4 batches)")
	assert.Contains(t, out, "done")
	assert.Contains(t, logs, `"msg":"run finished"`)
}

func TestRunFailureIsReported(t *testing.T) {
	dir := t.TempDir()
	good := writeConfig(t, "ok.json", fmt.Sprintf(`{"input": {"path": %q}, "output": {"path": %q}}`,
		netflixCSV(t), filepath.Join(dir, "ok.jsonl")))
	bad := writeConfig(t, "bad.json", fmt.Sprintf(`{"input": {"path": %q}, "output": {"path": %q}, "steps": [{"select": {"columns": ["rating", "votes"]}}]}`,
		netflixCSV(t), filepath.Join(dir, "bad.csv")))

	out, _, err := runCLI(t, "run", "--summary", "--log-level", "error", good, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.json")
	assert.Contains(t, err.Error(), `unknown column "rating"`)
	assert.Contains(t, out, "failed")
	_, statErr := os.Stat(filepath.Join(dir, "bad.csv"))
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(filepath.Join(dir, "ok.jsonl"))
	assert.NoError(t, statErr)
}

func TestProfileCommand(t *testing.T) {
	out, _, err := runCLI(t, "profile", "--format", "json", "-k", "1", netflixCSV(t))
	require.NoError(t, err)
	var rep struct {
		Rows    int `json:"rows"`
		Columns []struct {
			Name string `json:"name"`
			Kind string `json:"kind"`
			Str  *struct {
				Top []struct {
					Value string `json:"value"`
					Count int    `json:"count"`
				} `json:"top"`
			} `json:"str"`
		} `json:"columns"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 7, rep.Rows)
	require.Len(t, rep.Columns, 12)
	assert.Equal(t, "type", rep.Columns[1].Name)
	assert.Equal(t, "TV Show", rep.Columns[1].Str.Top[0].Value)
	assert.Equal(t, 5, rep.Columns[1].Str.Top[0].Count)
	assert.Equal(t, "int", rep.Columns[7].Kind)

	out, _, err = runCLI(t, "profile", netflixCSV(t))
	require.NoError(t, err)
	assert.Contains(t, out, "release_year")

	_, _, err = runCLI(t, "profile", filepath.Join(t.TempDir(), "nope.csv"))
	assert.ErrorContains(t, err, "source not found")
}

func TestScheduler(t *testing.T) {
	_, err := newScheduler("every tuesday", []string{"a.yaml"}, nil, nil)
	assert.Error(t, err)

	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})
	s, err := newScheduler("@every 1h", []string{"a.yaml"}, func(ctx context.Context, path string) error {
		calls.Add(1)
		close(started)
		<-release
		return errors.New("boom")
	}, nil)
	require.NoError(t, err)

	go s.fire(context.Background(), "a.yaml")
	<-started
	// a second tick while the first run is busy is skipped
	s.fire(context.Background(), "a.yaml")
	close(release)
	assert.Equal(t, int32(1), calls.Load())
}

func TestScheduleNeedsCron(t *testing.T) {
	_, _, err := runCLI(t, "schedule", "a.yaml")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "cron"))
}

func TestRunLogsToFile(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "logs", "catalogetl.log")
	cfg := writeConfig(t, "titles.yaml", fmt.Sprintf(`
input:
  path: %s
output:
  path: %s
log:
  file: %s
`, netflixCSV(t), filepath.Join(dir, "titles.jsonl"), logFile))

	_, logs, err := runCLI(t, "run", cfg)
	require.NoError(t, err, logs)
	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "run finished")
	assert.Equal(t, logs, string(data))

	flagFile := filepath.Join(dir, "flag.log")
	_, _, err = runCLI(t, "run", "--log-file", flagFile, cfg)
	require.NoError(t, err)
	data, err = os.ReadFile(flagFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "run finished")
}

func TestConcurrentRunsShareLogWriter(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 6; i++ {
		paths = append(paths, writeConfig(t, fmt.Sprintf("c%d.json", i), fmt.Sprintf(
			`{"input": {"path": %q, "batch_size": 1}, "output": {"path": %q}, "log": {"level": "debug", "format": "json"}}`,
			netflixCSV(t), filepath.Join(dir, fmt.Sprintf("out%d.csv", i)))))
	}
	var logs, report bytes.Buffer
	g := &globalOptions{}
	results, err := runConfigs(context.Background(), g, &runOptions{Parallel: 6, Profile: "text"}, paths, &logs, &report)
	require.NoError(t, err)
	require.Len(t, results, 6)

	lines := strings.Split(strings.TrimRight(logs.String(), "\n"), "\n")
	finished := 0
	for _, line := range lines {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec), line)
		if rec["msg"] == "run finished" {
			finished++
		}
	}
	assert.Equal(t, 6, finished)
}
