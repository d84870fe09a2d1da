package core

// MonthOverview is a compact summary of the transactions of one year+month.
type MonthOverview struct {
	Year    int     `json:"year"`
	Month   int     `json:"month"` // 1-12
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
	Net     float64 `json:"net"`
	Count   int     `json:"count"`
}

// Summarize totals the transactions dated in the given month. Transactions
// with unreadable dates are ignored.
func Summarize(transactions []Transaction, year, month int) MonthOverview {
	ov := MonthOverview{Year: year, Month: month}
	for _, t := range transactions {
		d, ok := ParseDate(t.Date)
		if !ok || d.Year() != year || d.Month() != month {
			continue
		}
		switch t.Type {
		case Income:
			ov.Income += t.Amount
		case Expense:
			ov.Expense += t.Amount
		default:
			continue
		}
		ov.Count++
	}
	ov.Income = RoundKurus(ov.Income)
	ov.Expense = RoundKurus(ov.Expense)
	ov.Net = RoundKurus(ov.Income - ov.Expense)
	return ov
}
