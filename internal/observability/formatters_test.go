package observability

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jonathan/seo-autopilot/internal/types"
)

var taipei = time.FixedZone("Asia/Taipei", 8*3600)

func TestPrintBatchResult(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, nil)

	p.PrintBatchResult(&types.BatchResult{
		BatchID:          uuid.New(),
		ScheduleName:     "general-daily",
		Requested:        5,
		Succeeded:        1,
		Failed:           0,
		SkippedForBudget: 4,
		StopReason:       types.StopBudget,
		Cost:             12.5,
		Jobs: []types.JobOutcome{
			{Keyword: "water bottles", Status: types.LogSuccess, Title: "Ten Bottles"},
			{Keyword: "tea", Status: types.LogFailed, Error: "budget exceeded"},
		},
	})
	output := buf.String()

	assert.Contains(t, output, "BATCH RESULT")
	assert.Contains(t, output, "general-daily")
	assert.Contains(t, output, "budget_exceeded")
	assert.Contains(t, output, "Skipped:    4 (budget)")
	assert.Contains(t, output, "✓ water bottles")
	assert.Contains(t, output, "✗ tea")
	assert.NotContains(t, output, "Cancelled")
}

func TestPrintBatchResult_ManyJobs(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, nil)

	jobs := make([]types.JobOutcome, 8)
	for i := range jobs {
		jobs[i] = types.JobOutcome{Keyword: fmt.Sprintf("kw-%d", i), Status: types.LogSuccess}
	}
	p.PrintBatchResult(&types.BatchResult{Requested: 8, Succeeded: 8, Jobs: jobs})

	assert.Contains(t, buf.String(), "... and 3 more jobs")
	assert.NotContains(t, buf.String(), "kw-5")
}

func TestPrintOnDemandResult(t *testing.T) {
	tests := []struct {
		name   string
		result *types.OnDemandResult
		want   []string
	}{
		{
			name:   "success",
			result: &types.OnDemandResult{Success: true, Message: "generated", PostReference: "article:3", Cost: 1.25},
			want:   []string{"✅ GENERATED", "article:3", "1.2500"},
		},
		{
			name:   "failure",
			result: &types.OnDemandResult{Message: "budget exceeded"},
			want:   []string{"❌ NOT GENERATED", "budget exceeded"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			NewPrinter(&buf, nil).PrintOnDemandResult(tt.result)
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestPrintBudgetUsage(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, nil)

	p.PrintBudgetUsage(&types.BudgetUsage{
		Currency:     "TWD",
		DailyBudget:  100,
		DailySpent:   85,
		DailyPercent: 85,
		MonthlySpent: 300,
		TodayByService: map[types.Service]float64{
			types.ServiceText:  80,
			types.ServiceImage: 5,
		},
	})
	output := buf.String()

	assert.Contains(t, output, "85.00 / 100.00 TWD (85.0%)")
	assert.Contains(t, output, "300.00 TWD (unlimited)")
	assert.Less(t, strings.Index(output, "image_generation"), strings.Index(output, "text_generation"))
}

func TestPrintSchedules(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, taipei)

	next := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)
	p.PrintSchedules([]types.Schedule{
		{ID: 1, Name: "general-daily", Status: types.ScheduleActive, Frequency: types.FrequencyDaily, BatchSize: 3, KeywordType: types.AffinityGeneral, NextRun: &next},
		{ID: 2, Name: "morning", Status: types.SchedulePaused, Frequency: types.FrequencyCustom, CustomTime: "09:30", BatchSize: 1, KeywordType: types.AffinityMixed},
	})
	output := buf.String()

	assert.Contains(t, output, "SCHEDULES (2)")
	assert.Contains(t, output, "#1 general-daily [active]")
	assert.Contains(t, output, "next 2026-03-10 09:00")
	assert.Contains(t, output, "daily at 09:30")
	assert.Contains(t, output, "next -, last -")
}

func TestPrintSchedules_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, nil).PrintSchedules(nil)
	assert.Contains(t, buf.String(), "No schedules defined")
}

func TestPrintLogs(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, nil)

	ref := "article:7"
	msg := "content generation timed out after 1m0s"
	p.PrintLogs([]types.GenerationLogEntry{
		{ID: 2, Status: types.LogFailed, KeywordsUsed: []string{"tea"}, ErrorMessage: &msg},
		{ID: 1, Status: types.LogSuccess, KeywordsUsed: []string{"water bottles"}, PostReference: &ref, APICost: 2, GenerationTime: 12},
	})
	output := buf.String()

	assert.Contains(t, output, "GENERATION LOG (2)")
	assert.Contains(t, output, "✗ #2")
	assert.Contains(t, output, "timed out")
	assert.Contains(t, output, "article:7  2.0000  12.0s")
}

func TestPrintKeywords(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, nil).PrintKeywords([]types.Keyword{
		{ID: 4, Text: "保溫瓶推薦", Type: types.KeywordGeneral, PriorityScore: 42.5, UseCount: 2, Status: types.KeywordActive},
	})
	output := buf.String()

	assert.Contains(t, output, "#4 保溫瓶推薦")
	assert.Contains(t, output, "priority 42.50, used 2×")
}

func TestPrintBox_TruncatesLongLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, nil)

	p.printBox("T", strings.Repeat("x", 100))

	for _, line := range strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n") {
		assert.Equal(t, boxWidth, len([]rune(line)), line)
	}
	assert.Contains(t, buf.String(), "...")
}

func TestNilInputsPrintNothing(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, nil)

	p.PrintBatchResult(nil)
	p.PrintOnDemandResult(nil)
	p.PrintBudgetUsage(nil)

	assert.Empty(t, buf.String())
}
