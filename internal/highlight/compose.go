package highlight

import (
	"sort"
	"time"

	"cuzdan/internal/core"
)

// Compose returns the highlight events for the window around now.
//
// The result is unordered and may hold several events on the same day.
// Records with dates that cannot be read contribute nothing; Compose never
// fails. It keeps no state between calls.
func Compose(now time.Time, transactions []core.Transaction, payments []core.Payment, cards []core.BankCard, opts Options) []core.HighlightedDate {
	opts = opts.Normalize()
	window := windowAround(now, opts)

	out := make([]core.HighlightedDate, 0, len(transactions)+len(payments)*len(window)+2*len(cards)*len(window))
	out = appendTransactions(out, transactions)
	out = appendPayments(out, payments, window)
	if opts.IncludeCards {
		out = appendCards(out, cards, window)
	}
	return out
}

func windowAround(now time.Time, opts Options) []Month {
	out := make([]Month, 0, opts.Months())
	for _, p := range core.MonthWindow(now, opts.PastMonths, opts.FutureMonths) {
		out = append(out, Month{Year: p[0], Month: p[1]})
	}
	return out
}

func appendTransactions(out []core.HighlightedDate, transactions []core.Transaction) []core.HighlightedDate {
	for _, t := range transactions {
		d, ok := core.ParseDate(t.Date)
		if !ok {
			continue
		}
		var kind core.HighlightType
		switch t.Type {
		case core.Expense:
			kind = core.HighlightExpense
		case core.Income:
			kind = core.HighlightIncome
		default:
			continue
		}
		out = append(out, core.HighlightedDate{
			Date:        d,
			Type:        kind,
			Description: t.Description + " • ₺" + core.FormatLira(t.Amount),
		})
	}
	return out
}

func appendPayments(out []core.HighlightedDate, payments []core.Payment, window []Month) []core.HighlightedDate {
	for _, p := range payments {
		if p.Status == core.Paid {
			continue
		}
		scheduler, ok := SchedulerFor(p.PaymentType)
		if !ok {
			continue
		}
		desc := p.Name + " • ₺" + core.FormatLira(p.Amount)
		for _, d := range scheduler.Dates(p, window) {
			out = append(out, core.HighlightedDate{Date: d, Type: core.HighlightPayment, Description: desc})
		}
	}
	return out
}

func appendCards(out []core.HighlightedDate, cards []core.BankCard, window []Month) []core.HighlightedDate {
	for _, c := range cards {
		label := c.Label()
		if day, ok := core.ExtractDigits(c.StatementDate); ok {
			for _, d := range monthlyDates(day, window) {
				out = append(out, core.HighlightedDate{Date: d, Type: core.HighlightCardStatement, Description: label + " hesap kesim"})
			}
		}
		if day, ok := core.ExtractDigits(c.PaymentDueDate); ok {
			for _, d := range monthlyDates(day, window) {
				out = append(out, core.HighlightedDate{Date: d, Type: core.HighlightCardDue, Description: label + " son ödeme"})
			}
		}
	}
	return out
}

// Sort orders events by date, keeping the composed order within a day.
func Sort(events []core.HighlightedDate) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Date.Before(events[j].Date.Time)
	})
}

// CountByType tallies events per highlight type.
func CountByType(events []core.HighlightedDate) map[core.HighlightType]int {
	out := make(map[core.HighlightType]int)
	for _, e := range events {
		out[e.Type]++
	}
	return out
}

// Between keeps the events dated in [from, to], both inclusive.
func Between(events []core.HighlightedDate, from, to core.Date) []core.HighlightedDate {
	var out []core.HighlightedDate
	for _, e := range events {
		if e.Date.Before(from.Time) || e.Date.After(to.Time) {
			continue
		}
		out = append(out, e)
	}
	return out
}
