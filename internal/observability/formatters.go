// Package observability provides logging, metrics and formatted CLI output.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonathan/seo-autopilot/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for CLI commands
type Printer struct {
	out io.Writer
	loc *time.Location
}

// NewPrinter creates a new Printer that writes to the given writer. Times
// are shown in loc, or UTC when loc is nil.
func NewPrinter(out io.Writer, loc *time.Location) *Printer {
	if loc == nil {
		loc = time.UTC
	}
	return &Printer{out: out, loc: loc}
}

// truncate shortens s to n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

func (p *Printer) formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.In(p.loc).Format("2006-01-02 15:04")
}

// PrintBatchResult outputs a batch summary followed by its first jobs.
func (p *Printer) PrintBatchResult(r *types.BatchResult) {
	if r == nil {
		return
	}

	var sb strings.Builder
	if r.ScheduleName != "" {
		sb.WriteString(fmt.Sprintf("Schedule:   %s\n", r.ScheduleName))
	}
	sb.WriteString(fmt.Sprintf("Batch:      %s\n", r.BatchID))
	sb.WriteString(fmt.Sprintf("Stopped:    %s\n", r.StopReason))
	sb.WriteString(fmt.Sprintf("Jobs:       %d requested, %d succeeded, %d failed\n", r.Requested, r.Succeeded, r.Failed))
	if r.SkippedForBudget > 0 {
		sb.WriteString(fmt.Sprintf("Skipped:    %d (budget)\n", r.SkippedForBudget))
	}
	if r.Cancelled > 0 {
		sb.WriteString(fmt.Sprintf("Cancelled:  %d\n", r.Cancelled))
	}
	sb.WriteString(fmt.Sprintf("Cost:       %.4f\n", r.Cost))
	sb.WriteString(fmt.Sprintf("Duration:   %.1fs\n", r.Seconds))

	if len(r.Jobs) > 0 {
		sb.WriteString("\n")
		count := min(len(r.Jobs), maxItemsToShow)
		for i := 0; i < count; i++ {
			job := r.Jobs[i]
			mark := "✓"
			detail := job.Title
			if job.Status != types.LogSuccess {
				mark = "✗"
				detail = job.Error
			}
			sb.WriteString(fmt.Sprintf("%s %s\n", mark, job.Keyword))
			if detail != "" {
				sb.WriteString(fmt.Sprintf("  %s\n", detail))
			}
		}
		if len(r.Jobs) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("... and %d more jobs\n", len(r.Jobs)-maxItemsToShow))
		}
	}

	p.printBox("BATCH RESULT", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintOnDemandResult outputs the result of a single job.
func (p *Printer) PrintOnDemandResult(r *types.OnDemandResult) {
	if r == nil {
		return
	}

	title := "✅ GENERATED"
	if !r.Success {
		title = "❌ NOT GENERATED"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Job:        %s\n", r.JobID))
	sb.WriteString(r.Message + "\n")
	if r.PostReference != "" {
		sb.WriteString(fmt.Sprintf("Reference:  %s\n", r.PostReference))
	}
	sb.WriteString(fmt.Sprintf("Cost:       %.4f", r.Cost))

	p.printBox(title, sb.String())
}

// PrintBudgetUsage outputs spend against the daily and monthly limits.
func (p *Printer) PrintBudgetUsage(u *types.BudgetUsage) {
	if u == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(budgetLine("Today", u.DailySpent, u.DailyBudget, u.DailyPercent, u.Currency))
	sb.WriteString(budgetLine("Month", u.MonthlySpent, u.MonthlyBudget, u.MonthlyPercent, u.Currency))

	if len(u.TodayByService) > 0 {
		services := make([]string, 0, len(u.TodayByService))
		for s := range u.TodayByService {
			services = append(services, string(s))
		}
		sort.Strings(services)

		sb.WriteString("\nToday by service:\n")
		for _, s := range services {
			sb.WriteString(fmt.Sprintf("  • %-18s %.4f\n", s, u.TodayByService[types.Service(s)]))
		}
	}

	p.printBox("BUDGET", strings.TrimSuffix(sb.String(), "\n"))
}

func budgetLine(label string, spent, limit, pct float64, currency string) string {
	if limit <= 0 {
		return fmt.Sprintf("%-6s %.2f %s (unlimited)\n", label+":", spent, currency)
	}
	return fmt.Sprintf("%-6s %.2f / %.2f %s (%.1f%%)\n", label+":", spent, limit, currency, pct)
}

// PrintSchedules outputs one entry per schedule.
func (p *Printer) PrintSchedules(schedules []types.Schedule) {
	if len(schedules) == 0 {
		p.printBox("SCHEDULES", "No schedules defined")
		return
	}

	var sb strings.Builder
	for i, s := range schedules {
		freq := string(s.Frequency)
		if s.Frequency == types.FrequencyCustom {
			freq = "daily at " + s.CustomTime
		}
		sb.WriteString(fmt.Sprintf("#%d %s [%s]\n", s.ID, s.Name, s.Status))
		sb.WriteString(fmt.Sprintf("   %s, %d × %s\n", freq, s.BatchSize, s.KeywordType))
		sb.WriteString(fmt.Sprintf("   next %s, last %s\n", p.formatTime(s.NextRun), p.formatTime(s.LastRun)))
		if i < len(schedules)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox(fmt.Sprintf("SCHEDULES (%d)", len(schedules)), strings.TrimSuffix(sb.String(), "\n"))
}

// PrintLogs outputs generation log entries as one line each.
func (p *Printer) PrintLogs(logs []types.GenerationLogEntry) {
	if len(logs) == 0 {
		p.printBox("GENERATION LOG", "No entries")
		return
	}

	var sb strings.Builder
	for _, e := range logs {
		mark := "✓"
		if e.Status != types.LogSuccess {
			mark = "✗"
		}
		keyword := strings.Join(e.KeywordsUsed, ", ")
		if keyword == "" {
			keyword = "-"
		}
		sb.WriteString(fmt.Sprintf("%s #%d %s %s\n", mark, e.ID, p.formatTime(&e.CreatedAt), keyword))
		if e.ErrorMessage != nil {
			sb.WriteString(fmt.Sprintf("  %s\n", *e.ErrorMessage))
		} else if e.PostReference != nil {
			sb.WriteString(fmt.Sprintf("  %s  %.4f  %.1fs\n", *e.PostReference, e.APICost, e.GenerationTime))
		}
	}

	p.printBox(fmt.Sprintf("GENERATION LOG (%d)", len(logs)), strings.TrimSuffix(sb.String(), "\n"))
}

// PrintKeywords outputs keywords ordered as given.
func (p *Printer) PrintKeywords(keywords []types.Keyword) {
	if len(keywords) == 0 {
		p.printBox("KEYWORDS", "No keywords")
		return
	}

	var sb strings.Builder
	for _, k := range keywords {
		sb.WriteString(fmt.Sprintf("#%d %s\n", k.ID, k.Text))
		sb.WriteString(fmt.Sprintf("   %s, priority %.2f, used %d×, %s\n", k.Type, k.PriorityScore, k.UseCount, k.Status))
	}

	p.printBox(fmt.Sprintf("KEYWORDS (%d)", len(keywords)), strings.TrimSuffix(sb.String(), "\n"))
}
