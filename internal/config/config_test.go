package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "default", cfg.Persona)
	assert.Equal(t, "mentions", cfg.Telegram.ListenMode)
	assert.Equal(t, 75, cfg.Behavior.ConfidenceThreshold)
	assert.True(t, cfg.Behavior.AutoCalendarActions)
	assert.Equal(t, 587, cfg.Email.SMTPPort)
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twind.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
persona: art
database_path: /var/lib/twind/twin.db
owner:
  email: art@example.com
  telegram_chat_id: "12345"
telegram:
  listen_mode: all
behavior:
  confidence_threshold: 60
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "art", cfg.Persona)
	assert.Equal(t, "/var/lib/twind/twin.db", cfg.DatabasePath)
	assert.Equal(t, "art@example.com", cfg.Owner.Email)
	assert.Equal(t, "12345", cfg.Owner.TelegramChatID)
	assert.Equal(t, "all", cfg.Telegram.ListenMode)
	assert.Equal(t, 60, cfg.Behavior.ConfidenceThreshold)
	// Untouched keys keep defaults.
	assert.Equal(t, ".twind/docs", cfg.DocstoreRoot)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twind.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
owner:
  email: file@example.com
telegram:
  bot_token: from-file
`), 0o644))

	t.Setenv("ART_EMAIL", "env@example.com")
	t.Setenv("TELEGRAM_BOT_TOKEN", "from-env")
	t.Setenv("SMTP_PORT", "2525")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env@example.com", cfg.Owner.Email)
	assert.Equal(t, "from-env", cfg.Telegram.BotToken)
	assert.Equal(t, 2525, cfg.Email.SMTPPort)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twind.yaml")
	require.NoError(t, os.WriteFile(path, []byte("persona: [unterminated"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Telegram.ListenMode = "broadcast"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Behavior.ConfidenceThreshold = 150
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Persona = ""
	assert.Error(t, cfg.Validate())
}
