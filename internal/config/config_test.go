package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	c, err := parse()
	require.NoError(t, err)

	assert.Equal(t, "8000", c.Port)
	assert.Equal(t, "gemini", c.ImageProvider)
	assert.Equal(t, 5*time.Minute, c.RoundDuration)
	assert.Equal(t, 5*time.Second, c.PromptGrace)
	assert.Equal(t, 10*time.Second, c.TransitionMax)
	assert.InDelta(t, 0.66, c.VoteQuorum, 1e-9)
	assert.False(t, c.PersistenceEnabled())
	assert.False(t, c.UploadsEnabled())
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("ADMIN_CODE", "  GM1 ")
	t.Setenv("IMAGE_PROVIDER", "OpenAI")
	t.Setenv("ROUND_DURATION", "90s")
	t.Setenv("CORS_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("DATABASE_URL", "postgres://localhost/promptcraft")

	c, err := parse()
	require.NoError(t, err)

	assert.Equal(t, "GM1", c.AdminCode)
	assert.Equal(t, "openai", c.ImageProvider)
	assert.Equal(t, 90*time.Second, c.RoundDuration)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, c.CORSOrigins)
	assert.True(t, c.PersistenceEnabled())

	s := c.GameSettings()
	assert.Equal(t, "GM1", s.AdminCode)
	assert.Equal(t, 90*time.Second, s.RoundDuration)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string][2]string{
		"unknown provider":    {"IMAGE_PROVIDER", "ollama"},
		"quorum out of range": {"VOTE_QUORUM", "1.5"},
		"zero round":          {"ROUND_DURATION", "0s"},
		"bad duration":        {"SELECTION_DURATION", "soon"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := parse()
			assert.Error(t, err)
		})
	}
}

func TestValidateTransitionBounds(t *testing.T) {
	c, err := parse()
	require.NoError(t, err)
	c.TransitionMin = 20 * time.Second
	assert.ErrorContains(t, c.Validate(), "TRANSITION_MAX")
}
