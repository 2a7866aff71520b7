package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Madhoneybees/discord-nft-verifier/core"
	"github.com/Madhoneybees/discord-nft-verifier/internal/config"
)

const minimal = `
tiers:
  - name: Holder
    min_count: 1
    role_id: "r1"
communities:
  - id: "g1"
    name: One
  - id: "g2"
    name: Two
    tiers:
      - name: Elite
        min_count: 3
        role_id: "r9"
`

func TestParseSettingsDefaults(t *testing.T) {
	s, err := config.ParseSettings([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultBatchSize, s.Verification.BatchSize)
	assert.Equal(t, 2*time.Second, s.Verification.BatchDelay)
	assert.Equal(t, "0 */6 * * *", s.Verification.Schedule)
	assert.Equal(t, 10*time.Minute, s.Verification.ChallengeTTL)
	assert.Equal(t, 15*time.Minute, s.RateLimit.Window)
	assert.Equal(t, 5, s.RateLimit.MaxAttempts)
	assert.Equal(t, []string{"g1", "g2"}, s.CommunityIDs())

	assert.Equal(t, "Holder", s.TiersFor("g1")[0].Name)
	assert.Equal(t, "Elite", s.TiersFor("g2")[0].Name)
	assert.Equal(t, "Holder", s.TiersFor("unknown")[0].Name)
}

func TestParseSettingsRejectsInvalid(t *testing.T) {
	testCases := map[string]string{
		"bad schedule": "verification:\n  schedule: \"every day\"\n",
		"bad contract": "collection:\n  contract_address: \"0x12\"\n",
		"dup tier": `
tiers:
  - {name: A, min_count: 1, role_id: r1}
  - {name: A, min_count: 2, role_id: r2}
`,
		"missing role": "tiers:\n  - {name: A, min_count: 1}\n",
		"dup community": `
communities:
  - {id: g1}
  - {id: g1}
`,
	}

	for name, doc := range testCases {
		doc := doc
		t.Run(name, func(t *testing.T) {
			_, err := config.ParseSettings([]byte(doc))
			require.ErrorIs(t, err, core.ErrInvalidConfig)
		})
	}

	_, err := config.ParseSettings([]byte("unknown_key: 1\n"))
	require.Error(t, err)
}

func TestLiveReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))

	live, err := config.NewLive(path)
	require.NoError(t, err)
	require.Len(t, live.Settings().Tiers, 1)

	updated := minimal + "  - id: \"g3\"\n    name: Three\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))
	require.NoError(t, live.Reload())
	assert.Len(t, live.Settings().Communities, 3)

	require.NoError(t, os.WriteFile(path, []byte("tiers: ["), 0o600))
	require.Error(t, live.Reload())
	assert.Len(t, live.Settings().Communities, 3)
}

func TestShippedSettingsParse(t *testing.T) {
	s, err := config.LoadSettings(filepath.Join("..", "..", "config", "settings.yaml"))
	require.NoError(t, err)
	assert.Len(t, s.Tiers, 3)
}

func TestLoadEnvDefaults(t *testing.T) {
	t.Setenv("VERIFIER_HTTP_ADDR", ":8081")
	env, err := config.LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8081", env.HTTPAddr)
	assert.Equal(t, "plain", env.LogFormat)
}
