package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"SERVICE_NAME", "DB_DSN", "HTTP_PORT", "GRPC_PORT", "RABBITMQ_URL", "LOG_LEVEL",
		"LOAN_PERIOD_DAYS", "ELIGIBLE_ROLES", "OVERDUE_SWEEP_INTERVAL", "TX_MAX_ATTEMPTS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "rental", cfg.ServiceName)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Empty(t, cfg.RabbitMQURL)
	assert.Equal(t, 14, cfg.LoanPeriodDays)
	assert.Equal(t, 14*24*time.Hour, cfg.LoanPeriod())
	assert.Equal(t, []string{"Student"}, cfg.EligibleRoles)
	assert.Equal(t, time.Hour, cfg.OverdueSweepInterval)
	assert.Equal(t, 4, cfg.TxMaxAttempts)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DSN", "file:dev.db")
	t.Setenv("LOAN_PERIOD_DAYS", "21")
	t.Setenv("ELIGIBLE_ROLES", "Student, Admin ,")
	t.Setenv("OVERDUE_SWEEP_INTERVAL", "0")
	t.Setenv("TX_MAX_ATTEMPTS", "not-a-number")

	cfg := Load()
	assert.Equal(t, "file:dev.db", cfg.DBDSN)
	assert.Equal(t, 21, cfg.LoanPeriodDays)
	assert.Equal(t, []string{"Student", "Admin"}, cfg.EligibleRoles)
	assert.Equal(t, time.Duration(0), cfg.OverdueSweepInterval)
	assert.Equal(t, 4, cfg.TxMaxAttempts)
}
