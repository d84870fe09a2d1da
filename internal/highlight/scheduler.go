package highlight

import (
	"sync"

	"cuzdan/internal/core"
)

// Month is a calendar month inside the window.
type Month struct {
	Year, Month int
}

// PaymentScheduler materialises the dates a payment falls on inside a window.
// Each payment type has its own scheduler.
type PaymentScheduler interface {
	Dates(p core.Payment, window []Month) []core.Date
}

// OnceScheduler places a custom payment on its exact date.
type OnceScheduler struct{}

func (OnceScheduler) Dates(p core.Payment, _ []Month) []core.Date {
	d, ok := core.ParseDate(p.Date)
	if !ok {
		return nil
	}
	return []core.Date{d}
}

// MonthlyScheduler places a fixed payment on its day in every window month.
type MonthlyScheduler struct{}

func (MonthlyScheduler) Dates(p core.Payment, window []Month) []core.Date {
	if !p.PaymentDay.OK {
		return nil
	}
	return monthlyDates(p.PaymentDay.N, window)
}

func monthlyDates(day int, window []Month) []core.Date {
	out := make([]core.Date, 0, len(window))
	for _, m := range window {
		out = append(out, core.ClampedDate(m.Year, m.Month, day))
	}
	return out
}

var (
	schedulersMu      sync.RWMutex
	paymentSchedulers = map[core.PaymentType]PaymentScheduler{
		core.Custom: OnceScheduler{},
		core.Fixed:  MonthlyScheduler{},
	}
)

// SchedulerFor returns the scheduler for a payment type.
func SchedulerFor(t core.PaymentType) (PaymentScheduler, bool) {
	schedulersMu.RLock()
	defer schedulersMu.RUnlock()
	s, ok := paymentSchedulers[t]
	return s, ok
}

// RegisterScheduler installs the scheduler used for a payment type.
func RegisterScheduler(t core.PaymentType, s PaymentScheduler) {
	schedulersMu.Lock()
	defer schedulersMu.Unlock()
	paymentSchedulers[t] = s
}
