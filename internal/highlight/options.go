// Package highlight composes the calendar overlay: every transaction, pending
// payment and card date that falls inside a rolling window of months.
package highlight

import "cuzdan/internal/core"

// Options controls the month window and whether card dates are included.
type Options struct {
	PastMonths   int  `json:"pastMonths"`
	FutureMonths int  `json:"futureMonths"`
	IncludeCards bool `json:"includeCards"`
}

// DefaultOptions returns a 3 month trailing and leading window with cards.
func DefaultOptions() Options {
	return Options{PastMonths: 3, FutureMonths: 3, IncludeCards: true}
}

// Normalize pins both window sizes into [0, core.MaxWindowMonths].
func (o Options) Normalize() Options {
	o.PastMonths = core.ClampWindow(o.PastMonths)
	o.FutureMonths = core.ClampWindow(o.FutureMonths)
	return o
}

// Months is the number of months in the inclusive window.
func (o Options) Months() int {
	o = o.Normalize()
	return o.PastMonths + o.FutureMonths + 1
}
