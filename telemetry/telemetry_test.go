package telemetry_test

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sw965/brawler/telemetry"
)

type point struct {
	step int
	loss float64
}

func (p point) MarshalZerologObject(e *zerolog.Event) {
	e.Int("step", p.step).Float64("loss", p.loss)
}

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestSinkAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "metrics.jsonl")

	first, err := telemetry.Open(path)
	require.NoError(t, err)
	_, err = uuid.Parse(first.RunID())
	require.NoError(t, err)
	first.Record("rollout", point{step: 1, loss: 0.5})
	first.Record("rollout", point{step: 2, loss: 0.25})
	require.NoError(t, first.Close())

	second, err := telemetry.Open(path)
	require.NoError(t, err)
	second.Record("snapshot", point{step: 3})
	require.NoError(t, second.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 3)
	assert.Equal(t, "rollout", lines[0]["kind"])
	assert.Equal(t, 2.0, lines[1]["step"])
	assert.Equal(t, 0.25, lines[1]["loss"])
	assert.Equal(t, first.RunID(), lines[0]["run_id"])
	assert.Equal(t, second.RunID(), lines[2]["run_id"])
	assert.NotEqual(t, lines[0]["run_id"], lines[2]["run_id"])
	assert.Contains(t, lines[0], "time")
}
