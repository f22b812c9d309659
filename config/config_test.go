package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("DATABASE_URL", "postgres://localhost/studentdir")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 2025, cfg.Import.DefaultAdmissionYear)
	assert.Equal(t, int64(5<<20), cfg.Import.MaxFileSize)
	assert.Equal(t, "/telegram/webhook", cfg.HTTP.WebhookPath)
	assert.Equal(t, 10*time.Minute, cfg.Access.CacheTTL)
	assert.Equal(t, "/metrics", cfg.Observability.MetricsPath)
}

func TestLoad_ParsesLists(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("DATABASE_URL", "postgres://localhost/studentdir")
	t.Setenv("ADMIN_TELEGRAM_IDS", "1, 2,oops,3")
	t.Setenv("ADMIN_USERNAMES", "@Registrar, dean ,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 3}, cfg.Access.AdminIDs)
	assert.Equal(t, []string{"Registrar", "dean"}, cfg.Access.AdminUsernames)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		App:      AppConfig{Environment: EnvProduction},
		Telegram: TelegramConfig{UseWebhook: true},
		HTTP:     HTTPConfig{Port: 0},
		Access:   AccessConfig{Open: true},
		Import:   ImportConfig{DefaultAdmissionYear: 25, MaxFileSize: 0},
	}

	err := cfg.Validate()
	require.Error(t, err)

	for _, want := range []string{
		"TELEGRAM_BOT_TOKEN",
		"DATABASE_URL",
		"TELEGRAM_WEBHOOK_URL",
		"TELEGRAM_WEBHOOK_SECRET",
		"ACCESS_OPEN",
		"IMPORT_DEFAULT_ADMISSION_YEAR",
		"IMPORT_MAX_FILE_SIZE",
		"PORT",
	} {
		assert.Contains(t, err.Error(), want)
	}
}
