package elo_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sw965/brawler/elo"
)

func TestExpectedScoreSymmetry(t *testing.T) {
	for _, r := range []float64{100, 1000, 1500, 2999} {
		assert.Equal(t, 0.5, elo.ExpectedScore(r, r))
	}
	a := elo.ExpectedScore(1700, 1500)
	b := elo.ExpectedScore(1500, 1700)
	assert.InDelta(t, 1.0, a+b, 1e-12)
	assert.Greater(t, a, 0.5)
}

func TestRegister(t *testing.T) {
	r := elo.New(elo.DefaultConfig())
	p, err := r.Register("a")
	require.NoError(t, err)
	assert.Equal(t, 1500.0, p.Rating)

	p, err = r.Register("b", 1800)
	require.NoError(t, err)
	assert.Equal(t, 1800.0, p.Rating)

	_, err = r.Register("a")
	assert.ErrorIs(t, err, elo.ErrDuplicateID)
	assert.Equal(t, 2, r.Len())
}

func TestUpdateExample(t *testing.T) {
	r := elo.New(elo.DefaultConfig())
	out, err := r.Update("w", "l", elo.Win)
	require.NoError(t, err)
	assert.InDelta(t, 1516.0, out.Winner.Rating, 1e-9)
	assert.InDelta(t, 1484.0, out.Loser.Rating, 1e-9)
	assert.Equal(t, 1, out.Winner.Wins)
	assert.Equal(t, 1, out.Loser.Losses)
	assert.Equal(t, 1, out.Winner.GamesPlayed)
	assert.Equal(t, 1.0, out.Winner.WinRate())
	assert.Equal(t, 0.0, out.Loser.WinRate())
}

func TestUpdateDrawAndLoss(t *testing.T) {
	r := elo.New(elo.DefaultConfig())
	out, err := r.Update("a", "b", elo.Draw)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, out.Winner.Rating)
	assert.Equal(t, 1500.0, out.Loser.Rating)
	assert.Equal(t, 1, out.Winner.Draws)
	assert.Equal(t, 1, out.Loser.Draws)

	out, err = r.Update("a", "b", elo.Loss)
	require.NoError(t, err)
	assert.InDelta(t, 1484.0, out.Winner.Rating, 1e-9)
	assert.InDelta(t, 1516.0, out.Loser.Rating, 1e-9)
	assert.Equal(t, 1, out.Winner.Losses)
	assert.Equal(t, 1, out.Loser.Wins)

	_, err = r.Update("a", "a", elo.Win)
	assert.Error(t, err)
}

func TestUpdateClamps(t *testing.T) {
	cfg := elo.DefaultConfig()
	cfg.K = 10000
	r := elo.New(cfg)
	for i := 0; i < 50; i++ {
		out, err := r.Update("strong", "weak", elo.Win)
		require.NoError(t, err)
		assert.LessOrEqual(t, out.Winner.Rating, cfg.MaxRating)
		assert.GreaterOrEqual(t, out.Loser.Rating, cfg.MinRating)
	}
	p, _ := r.Player("strong")
	assert.Equal(t, cfg.MaxRating, p.Rating)
	p, _ = r.Player("weak")
	assert.Equal(t, cfg.MinRating, p.Rating)
}

func TestUpdateAdaptive(t *testing.T) {
	cfg := elo.DefaultConfig()
	r := elo.New(cfg)
	assert.Equal(t, cfg.HighK, r.AdaptiveK(0))
	assert.Equal(t, cfg.MediumK, r.AdaptiveK(20))
	assert.Equal(t, cfg.LowK, r.AdaptiveK(100))

	out, err := r.UpdateAdaptive("a", "b", elo.Win)
	require.NoError(t, err)
	assert.InDelta(t, 1500+cfg.HighK/2, out.Winner.Rating, 1e-9)

	// configured K is untouched by adaptive updates
	assert.Equal(t, cfg.K, r.Config().K)
	out, err = r.Update("c", "d", elo.Win)
	require.NoError(t, err)
	assert.InDelta(t, 1516.0, out.Winner.Rating, 1e-9)
}

func TestUpdateAdaptiveAveragesK(t *testing.T) {
	cfg := elo.DefaultConfig()
	r := elo.New(cfg)
	require.NoError(t, r.RegisterRecord(elo.Player{ID: "veteran", Rating: 1500, GamesPlayed: 500}))
	out, err := r.UpdateAdaptive("veteran", "rookie", elo.Win)
	require.NoError(t, err)
	k := (cfg.LowK + cfg.HighK) / 2
	assert.InDelta(t, 1500+k/2, out.Winner.Rating, 1e-9)
	assert.InDelta(t, 1500-k/2, out.Loser.Rating, 1e-9)
}

func TestReadSide(t *testing.T) {
	r := elo.New(elo.DefaultConfig())
	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := r.Register(id)
		require.NoError(t, err)
	}
	_, err := r.Update("c", "a", elo.Win)
	require.NoError(t, err)
	_, err = r.Update("c", "b", elo.Win)
	require.NoError(t, err)

	before := r.Export()
	board := r.Leaderboard(2)
	require.Len(t, board, 2)
	assert.Equal(t, "c", board[0].ID)
	assert.Equal(t, "d", board[1].ID)

	assert.Len(t, r.InRange(1490, 1510), 1)

	s := r.Summary()
	assert.Equal(t, 4, s.Count)
	assert.InDelta(t, 1500.0, s.Mean, 1e-9)
	cRating, _ := r.Player("c")
	assert.Equal(t, cRating.Rating, s.Max)
	assert.Greater(t, s.StdDev, 0.0)

	assert.Equal(t, before, r.Export())
}

func TestSummarize(t *testing.T) {
	s := elo.Summarize([]float64{1, 3, 2, 4})
	assert.Equal(t, 2.5, s.Median)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 4.0, s.Max)
	assert.InDelta(t, 1.118033988, s.StdDev, 1e-6)
	assert.Equal(t, elo.Summary{}, elo.Summarize(nil))
}

func TestExportImportRoundTrip(t *testing.T) {
	r := elo.New(elo.DefaultConfig())
	_, err := r.Update("a", "b", elo.Win)
	require.NoError(t, err)
	_, err = r.Update("b", "c", elo.Draw)
	require.NoError(t, err)
	_, err = r.UpdateAdaptive("c", "a", elo.Loss)
	require.NoError(t, err)

	data, err := json.Marshal(r.Export())
	require.NoError(t, err)
	var e elo.Export
	require.NoError(t, json.Unmarshal(data, &e))

	fresh := elo.New(elo.Config{})
	require.NoError(t, fresh.Import(e))
	assert.Equal(t, r.Players(), fresh.Players())
	assert.Equal(t, r.Config(), fresh.Config())

	r.Reset()
	assert.Zero(t, r.Len())
	_, ok := r.Player("a")
	assert.False(t, ok)
}
