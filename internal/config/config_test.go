package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"points-ledger-bot/internal/model"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, int64(10), cfg.Points.Daily)
	assert.Equal(t, int64(50), cfg.Points.Referral)
	assert.Equal(t, int64(50), cfg.Points.Social)
	assert.Equal(t, 24*time.Hour, cfg.Points.Cooldown)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, time.Minute, cfg.Redis.LeaderboardTTL)

	require.Len(t, cfg.Channels, 4)
	assert.Equal(t, "instagram", cfg.Channels[0].ID)
	assert.Equal(t, "https://t.me/Forex_Fabric", cfg.Channels[1].URL)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	dir := t.TempDir()

	yaml := `
points:
  daily: 25
  cooldown: 12h
channels:
  - id: discord
    name: Discord
    url: https://discord.gg/example
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("POINTS_REFERRAL", "75")
	t.Setenv("DATABASE_HOST", "db.internal")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, int64(25), cfg.Points.Daily)
	assert.Equal(t, int64(75), cfg.Points.Referral)
	assert.Equal(t, 12*time.Hour, cfg.Points.Cooldown)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	require.Len(t, cfg.Channels, 1)
	assert.Equal(t, "discord", cfg.Channels[0].ID)
}

func TestLoad_DotEnv(t *testing.T) {
	wd := t.TempDir()
	chdir(t, wd)
	require.NoError(t, os.WriteFile(filepath.Join(wd, ".env"), []byte("BOT_TOKEN=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("BOT_TOKEN") })

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Bot.Token)
}

func TestValidate(t *testing.T) {
	valid := Config{
		Points:   PointsConfig{Daily: 10, Referral: 50, Social: 50, Cooldown: time.Hour},
		Channels: []model.Channel{{ID: "telegram", URL: "https://t.me/x"}},
	}
	assert.NoError(t, valid.Validate())

	bad := valid
	bad.Points.Daily = 0
	assert.Error(t, bad.Validate())

	bad = valid
	bad.Points.Cooldown = 0
	assert.Error(t, bad.Validate())

	bad = valid
	bad.Channels = []model.Channel{{ID: "a", URL: "u"}, {ID: "a", URL: "u"}}
	assert.Error(t, bad.Validate())

	bad = valid
	bad.Channels = []model.Channel{{ID: "a"}}
	assert.Error(t, bad.Validate())
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: 5432, Name: "n"}
	assert.Equal(t, "postgres://u:p@h:5432/n?sslmode=disable", d.DSN())

	d.SSLMode = "require"
	assert.Equal(t, "postgres://u:p@h:5432/n?sslmode=require", d.DSN())
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
