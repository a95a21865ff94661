package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPrivileged(t *testing.T) {
	cases := map[string]bool{
		"true":  true,
		"TRUE":  true,
		"True":  true,
		"tRuE":  true,
		"false": false,
		"False": false,
		"":      false,
		"1":     false,
		"yes":   false,
		" true": false,
	}
	for in, want := range cases {
		assert.Equal(t, want, IsPrivileged(in), "is_admin=%q", in)
	}
}

func TestNewRuntime_Defaults(t *testing.T) {
	rt, err := NewRuntime(Defaults(), "s-1", nil)
	require.NoError(t, err)

	assert.Equal(t, "s-1", rt.SessionID)
	assert.Equal(t, AgentRouted, rt.AgentID)
	assert.Equal(t, "OpenAI", rt.Model)
	assert.Equal(t, 10, rt.HistoryWindow)
	assert.Equal(t, 3, rt.K)
	assert.Equal(t, DefaultEmbedding, rt.EmbeddingModel)
	assert.False(t, rt.Privileged)
	assert.Equal(t, 30*time.Second, rt.ClassifierTimeout)
	assert.Equal(t, 6, rt.MaxSteps())
}

func TestNewRuntime_Overrides(t *testing.T) {
	rt, err := NewRuntime(Defaults(), "s-2", MapLookup(map[string]string{
		KeyModel:         "Bedrock",
		KeyTemperature:   "0.5",
		KeyHistoryWindow: "3",
		KeyIsAdmin:       "TRUE",
		KeyFiles:         `["a.pdf","b.txt"]`,
		KeyK:             "8",
		KeyPeerAPIKey:    "sk-1",
		KeyPeerBaseURL:   "https://peer.example",
	}))
	require.NoError(t, err)

	assert.Equal(t, "Bedrock", rt.Model)
	assert.True(t, rt.HighCapacity())
	assert.Equal(t, 12, rt.MaxSteps())
	assert.InDelta(t, 0.5, rt.Temperature, 1e-9)
	assert.Equal(t, 3, rt.HistoryWindow)
	assert.True(t, rt.Privileged)
	assert.Equal(t, []string{"a.pdf", "b.txt"}, rt.Files)
	assert.Equal(t, 8, rt.K)
	assert.NoError(t, rt.RequirePeerCredentials())
}

func TestNewRuntime_CommaSeparatedFiles(t *testing.T) {
	rt, err := NewRuntime(Defaults(), "s", MapLookup(map[string]string{KeyFiles: " a.pdf, ,b.txt "}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "b.txt"}, rt.Files)
}

func TestNewRuntime_RejectsMalformedNumbers(t *testing.T) {
	for _, key := range []string{KeyTemperature, KeyHistoryWindow, KeyK} {
		_, err := NewRuntime(Defaults(), "s", MapLookup(map[string]string{key: "lots"}))
		assert.Error(t, err, key)
	}
}

func TestNewRuntime_MissingModelIsFatal(t *testing.T) {
	cfg := Defaults()
	cfg.Palette.Text2TextModel = ""
	_, err := NewRuntime(cfg, "s", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissing))
}

func TestRequirePeerCredentials(t *testing.T) {
	rt, err := NewRuntime(Defaults(), "s", MapLookup(map[string]string{KeyPeerAPIKey: "sk"}))
	require.NoError(t, err)

	err = rt.RequirePeerCredentials()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissing)
	assert.Contains(t, err.Error(), KeyPeerBaseURL)
}

func TestChainLookup_FirstHitWins(t *testing.T) {
	l := ChainLookup(
		MapLookup(map[string]string{"a": "1"}),
		nil,
		MapLookup(map[string]string{"a": "2", "b": "3"}),
	)
	v, ok := l("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	v, ok = l("b")
	assert.True(t, ok)
	assert.Equal(t, "3", v)
	_, ok = l("c")
	assert.False(t, ok)
}
