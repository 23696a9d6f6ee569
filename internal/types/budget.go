package types

// BudgetUsage is spend against the daily and monthly limits. A zero
// budget means unlimited and reports 0 percent.
type BudgetUsage struct {
	Currency       string              `json:"currency"`
	DailyBudget    float64             `json:"daily_budget"`
	DailySpent     float64             `json:"daily_spent"`
	DailyPercent   float64             `json:"daily_percent"`
	MonthlyBudget  float64             `json:"monthly_budget"`
	MonthlySpent   float64             `json:"monthly_spent"`
	MonthlyPercent float64             `json:"monthly_percent"`
	TodayByService map[Service]float64 `json:"today_by_service"`
}
