package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/seo-autopilot/internal/config"
	"github.com/jonathan/seo-autopilot/internal/memstore"
	"github.com/jonathan/seo-autopilot/internal/schedule"
	"github.com/jonathan/seo-autopilot/internal/server"
	"github.com/jonathan/seo-autopilot/internal/types"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// execute runs the root command in-process against the in-memory store.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("JWT_ISSUER", "seo-autopilot")
	t.Setenv("JWT_TTL", "24h")

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestExitCode(t *testing.T) {
	validation := &types.ValidationError{Field: "x", Message: "bad"}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, types.ExitOK},
		{"plain error", errors.New("boom"), types.ExitPartial},
		{"budget", withExitCode(types.ExitBudget, nil), types.ExitBudget},
		{"partial", withExitCode(types.ExitPartial, nil), types.ExitPartial},
		{"validation", classify(validation), types.ExitValidation},
		{"wrapped validation", classify(errors.Join(errors.New("file"), validation)), types.ExitValidation},
		{"classify leaves others", classify(errors.New("db down")), types.ExitPartial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestWithExitCode_ZeroPassesThrough(t *testing.T) {
	assert.NoError(t, withExitCode(types.ExitOK, nil))

	err := errors.New("x")
	assert.Same(t, err, withExitCode(types.ExitOK, err))

	wrapped := withExitCode(types.ExitBudget, err)
	assert.ErrorIs(t, wrapped, err)
	assert.Equal(t, "x", wrapped.Error())
	assert.Equal(t, "exit status 2", withExitCode(types.ExitBudget, nil).Error())
}

func TestWorstExitCode(t *testing.T) {
	ok := &types.BatchResult{StopReason: types.StopCompleted}
	partial := &types.BatchResult{StopReason: types.StopCompleted, Failed: 1}
	budget := &types.BatchResult{StopReason: types.StopBudget}

	assert.Equal(t, types.ExitOK, worstExitCode(nil))
	assert.Equal(t, types.ExitOK, worstExitCode([]*types.BatchResult{ok}))
	assert.Equal(t, types.ExitPartial, worstExitCode([]*types.BatchResult{ok, partial}))
	assert.Equal(t, types.ExitBudget, worstExitCode([]*types.BatchResult{budget, partial, ok}))
}

func TestParseTickTime(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	got, err := parseTickTime("", now)
	require.NoError(t, err)
	assert.Equal(t, now, got)

	got, err = parseTickTime("2026-03-10T20:30:00+08:00", now)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)))

	_, err = parseTickTime("tomorrow", now)
	assert.True(t, types.IsValidationError(err))
}

func TestLogFilter(t *testing.T) {
	f, err := logFilter(20, "")
	require.NoError(t, err)
	assert.Equal(t, types.LogFilter{Limit: 20}, f)

	f, err = logFilter(5, "failed")
	require.NoError(t, err)
	assert.Equal(t, types.LogFailed, f.Status)

	_, err = logFilter(0, "")
	assert.True(t, types.IsValidationError(err))
	_, err = logFilter(5, "pending")
	assert.True(t, types.IsValidationError(err))
}

func TestParseRunID(t *testing.T) {
	id, err := parseRunID("6F9619FF-8B86-D011-B42D-00C04FC964FF")
	require.NoError(t, err)
	assert.Equal(t, "6f9619ff-8b86-d011-b42d-00c04fc964ff", id)

	_, err = parseRunID("42")
	assert.True(t, types.IsValidationError(err))
}

func TestResolveSchedule(t *testing.T) {
	ctx := context.Background()
	engine := schedule.NewEngine(memstore.New(), time.UTC)
	id, err := engine.Upsert(ctx, &types.Schedule{Name: "general-daily", KeywordType: types.AffinityGeneral, Frequency: types.FrequencyDaily, BatchSize: 1})
	require.NoError(t, err)

	byName, err := resolveSchedule(ctx, engine, "general-daily")
	require.NoError(t, err)
	assert.Equal(t, id, byName.ID)

	byID, err := resolveSchedule(ctx, engine, "1")
	require.NoError(t, err)
	assert.Equal(t, "general-daily", byID.Name)

	_, err = resolveSchedule(ctx, engine, "nightly")
	assert.True(t, types.IsValidationError(err))
	_, err = resolveSchedule(ctx, engine, "99")
	assert.True(t, types.IsValidationError(err))
}

func TestTokenCommand(t *testing.T) {
	out, err := execute(t, "token", "--subject", "ops")
	require.NoError(t, err)

	token := strings.TrimSpace(out)
	require.NotEmpty(t, token)

	svc := server.NewTokenService(&config.JWTConfig{Secret: testSecret, Issuer: "seo-autopilot", TTL: 24 * time.Hour})
	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
}

func TestGenerateCommand_InvalidCount(t *testing.T) {
	_, err := execute(t, "generate", "--count", "0")
	require.Error(t, err)
	assert.Equal(t, types.ExitValidation, exitCode(err))
}

func TestScheduleApplyCommand(t *testing.T) {
	path := writeFile(t, "schedules.yaml", schedulesYAML)

	out, err := execute(t, "schedule", "apply", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Applied 2 schedule(s)")
}

func TestKeywordsImportCommand_InvalidFile(t *testing.T) {
	path := writeFile(t, "keywords.yaml", "keywords:\n  - {text: a, type: seasonal}\n")

	_, err := execute(t, "keywords", "import", "-f", path)
	require.Error(t, err)
	assert.Equal(t, types.ExitValidation, exitCode(err))
}

func TestBudgetCommand_JSON(t *testing.T) {
	t.Setenv("BUDGET_DAILY", "100")
	t.Setenv("BUDGET_MONTHLY", "0")

	out, err := execute(t, "budget", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"daily_budget": 100`)
}
