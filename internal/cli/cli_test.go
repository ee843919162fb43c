package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testWorkspace writes a config file pointing at temp paths and returns
// the config path.
func testWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`scope_id: guild-42
db_path: %s
archive_dir: %s
snapshot_interval: 30m
time_zone: UTC
`, filepath.Join(dir, "tracker.db"), filepath.Join(dir, "snapshots"))
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
	return configPath
}

var testEventLog = strings.Join([]string{
	`{"type":"record_seen","record_id":"r1","scope_id":"guild-42","team_id":"1","creator_id":"alice","created_at":1764576000}`,
	`{"type":"participation_marked","record_id":"r1","user_id":"alice"}`,
	`{"type":"participation_marked","record_id":"r1","user_id":"bob"}`,
	`{"type":"outcome_marker","record_id":"r1","marker":"win","present":true}`,
	`{"type":"record_seen","record_id":"r2","scope_id":"guild-42","creator_id":"bob","created_at":1764579600}`,
	`{"type":"participation_marked","record_id":"r2","user_id":"bob","actor_id":"alice","source":"assisted"}`,
}, "\n") + "\n"

func writeEventLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execCLI runs the command tree with the given args and captures stdout.
func execCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// decodeData unmarshals the data field of a JSON CLI response.
func decodeData(t *testing.T, output string, dst any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp), "output: %s", output)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, dst))
}

func TestRoot_RejectsInvalidFormat(t *testing.T) {
	_, err := execCLI(t, "--format", "xml", "top")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestIngest_AppliesAndDeduplicates(t *testing.T) {
	configPath := testWorkspace(t)
	logPath := writeEventLog(t, testEventLog)

	out, err := execCLI(t, "--config", configPath, "--format", "json", "ingest", logPath)
	require.NoError(t, err)

	var result IngestResult
	decodeData(t, out, &result)
	assert.Equal(t, 6, result.Events)
	assert.Equal(t, 6, result.Applied)

	// Same log again: everything converges to no-ops.
	out, err = execCLI(t, "--config", configPath, "--format", "json", "ingest", logPath)
	require.NoError(t, err)
	decodeData(t, out, &result)
	assert.Equal(t, 0, result.Applied)
	assert.Equal(t, 6, result.Noops)
}

func TestIngest_MalformedLineFails(t *testing.T) {
	configPath := testWorkspace(t)
	logPath := writeEventLog(t, "{broken\n")

	_, err := execCLI(t, "--config", configPath, "ingest", logPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestStats_GlobalAndTeams(t *testing.T) {
	configPath := testWorkspace(t)
	logPath := writeEventLog(t, testEventLog)
	_, err := execCLI(t, "--config", configPath, "ingest", logPath)
	require.NoError(t, err)

	out, err := execCLI(t, "--config", configPath, "--format", "json", "stats")
	require.NoError(t, err)

	var result StatsResult
	decodeData(t, out, &result)
	assert.Equal(t, "guild-42", result.Scope)
	assert.Equal(t, int64(2), result.Global.Attacks)
	assert.Equal(t, int64(1), result.Global.Wins)
	require.Contains(t, result.Teams, "1")
	assert.Equal(t, int64(1), result.Teams["1"].Attacks)
}

func TestStats_PerUser(t *testing.T) {
	configPath := testWorkspace(t)
	logPath := writeEventLog(t, testEventLog)
	_, err := execCLI(t, "--config", configPath, "ingest", logPath)
	require.NoError(t, err)

	out, err := execCLI(t, "--config", configPath, "--format", "json", "stats", "--user", "bob")
	require.NoError(t, err)

	var result UserStatsResult
	decodeData(t, out, &result)
	assert.Equal(t, int64(2), result.Counts["participation"])
	assert.Equal(t, int64(1), result.Counts["initiator"])
	assert.Equal(t, int64(1), result.Counts["win"])
	assert.Len(t, result.Recent, 2)
}

func TestTop_Leaderboard(t *testing.T) {
	configPath := testWorkspace(t)
	logPath := writeEventLog(t, testEventLog)
	_, err := execCLI(t, "--config", configPath, "ingest", logPath)
	require.NoError(t, err)

	out, err := execCLI(t, "--config", configPath, "--format", "json", "top", "--metric", "participation")
	require.NoError(t, err)

	var result TopResult
	decodeData(t, out, &result)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, TopEntry{Rank: 1, UserID: "bob", Count: 2}, result.Entries[0])
	assert.Equal(t, TopEntry{Rank: 2, UserID: "alice", Count: 1}, result.Entries[1])
}

func TestTop_RejectsUnknownMetric(t *testing.T) {
	configPath := testWorkspace(t)

	_, err := execCLI(t, "--config", configPath, "top", "--metric", "vibes")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSnapshot_SaveThenRestore(t *testing.T) {
	configPath := testWorkspace(t)
	logPath := writeEventLog(t, testEventLog)
	_, err := execCLI(t, "--config", configPath, "ingest", logPath)
	require.NoError(t, err)

	out, err := execCLI(t, "--config", configPath, "--format", "json", "snapshot", "save")
	require.NoError(t, err)
	var saved struct {
		SnapshotID string `json:"snapshot_id"`
		EntryID    string `json:"entry_id"`
		Skipped    bool   `json:"skipped"`
	}
	decodeData(t, out, &saved)
	assert.False(t, saved.Skipped)
	assert.NotEmpty(t, saved.EntryID)

	out, err = execCLI(t, "--config", configPath, "--format", "json", "snapshot", "restore")
	require.NoError(t, err)
	var restored struct {
		Found   bool   `json:"found"`
		EntryID string `json:"entry_id"`
	}
	decodeData(t, out, &restored)
	assert.True(t, restored.Found)
	assert.Equal(t, saved.EntryID, restored.EntryID)
}

func TestSnapshot_RestoreRequireFailsWhenEmpty(t *testing.T) {
	configPath := testWorkspace(t)

	_, err := execCLI(t, "--config", configPath, "snapshot", "restore", "--require")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestReplay_Converges(t *testing.T) {
	configPath := testWorkspace(t)
	logPath := writeEventLog(t, testEventLog)

	out, err := execCLI(t, "--config", configPath, "--format", "json", "replay", logPath)
	require.NoError(t, err)

	var result ReplayResult
	decodeData(t, out, &result)
	assert.Equal(t, 6, result.Events)
	assert.True(t, result.Converged)
}

func TestCommands_FailWithoutConfig(t *testing.T) {
	for _, args := range [][]string{
		{"--config", "/nonexistent/config.yaml", "stats"},
		{"--config", "/nonexistent/config.yaml", "top"},
		{"--config", "/nonexistent/config.yaml", "snapshot", "save"},
	} {
		_, err := execCLI(t, args...)
		require.Error(t, err, "args %v", args)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	}
}
