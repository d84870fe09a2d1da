package core

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// dateParser recognises one textual date layout.
type dateParser struct {
	name    string
	pattern *regexp.Regexp
	// order maps submatch positions to year, month, day.
	year, month, day int
}

// dateParsers are tried in this order; the first match wins.
var dateParsers = []dateParser{
	{
		name:    "day-month-year",
		pattern: regexp.MustCompile(`^(\d{1,2})([-/.])(\d{1,2})([-/.])(\d{4})$`),
		day:     1, month: 3, year: 5,
	},
	{
		name:    "year-month-day",
		pattern: regexp.MustCompile(`^(\d{4})([-/.])(\d{1,2})([-/.])(\d{1,2})$`),
		year:    1, month: 3, day: 5,
	},
}

// ParseDate reads DD-MM-YYYY or YYYY-MM-DD (separator '-', '/' or '.', the
// same one twice). A trailing "T..." time part is dropped first. Values that
// do not name a real calendar day are rejected, and so are mixed separators
// such as "15-03/2024".
func ParseDate(s string) (Date, bool) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return Date{}, false
	}
	for _, p := range dateParsers {
		if d, ok := p.parse(s); ok {
			return d, true
		}
	}
	return Date{}, false
}

func (p dateParser) parse(s string) (Date, bool) {
	m := p.pattern.FindStringSubmatch(s)
	if m == nil || m[2] != m[4] {
		return Date{}, false
	}
	year, _ := strconv.Atoi(m[p.year])
	month, _ := strconv.Atoi(m[p.month])
	day, _ := strconv.Atoi(m[p.day])
	if month < 1 || month > 12 || day < 1 || day > DaysInMonth(year, month) {
		return Date{}, false
	}
	return NewDate(year, month, day), true
}

// DaysInMonth returns the number of days in month (1-12) of year.
func DaysInMonth(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ClampDay pins day into [1, DaysInMonth(year, month)].
func ClampDay(year, month, day int) int {
	if day < 1 {
		return 1
	}
	if last := DaysInMonth(year, month); day > last {
		return last
	}
	return day
}

// ClampedDate builds the date for day in the given month, clamping the day.
func ClampedDate(year, month, day int) Date {
	return NewDate(year, month, ClampDay(year, month, day))
}

// MonthAt resolves a zero-based month offset relative to January of year.
// Negative and >11 values roll the year back or forward.
func MonthAt(year, month0 int) (int, int) {
	y := year + floorDiv(month0, 12)
	m := ((month0 % 12) + 12) % 12
	return y, m + 1
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// MaxWindowMonths bounds how many months a window may reach on either side of now.
const MaxWindowMonths = 24

// ClampWindow pins a window size into [0, MaxWindowMonths].
func ClampWindow(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxWindowMonths {
		return MaxWindowMonths
	}
	return n
}

// MonthWindow lists (year, month) pairs from past months before the month of
// now through future months after it, inclusive. Both sizes are clamped with
// ClampWindow.
func MonthWindow(now time.Time, past, future int) [][2]int {
	past = ClampWindow(past)
	future = ClampWindow(future)
	base := int(now.Month()) - 1
	out := make([][2]int, 0, past+future+1)
	for offset := -past; offset <= future; offset++ {
		y, m := MonthAt(now.Year(), base+offset)
		out = append(out, [2]int{y, m})
	}
	return out
}

// AddMonthsClamped moves d by n months keeping its day where the target month allows.
func AddMonthsClamped(d Date, n int) Date {
	y, m := MonthAt(d.Year(), d.Month()-1+n)
	return ClampedDate(y, m, d.Day())
}

// ExtractDigits drops every non-digit and parses what is left.
// "Ayın 26'sı" gives 26.
func ExtractDigits(s string) (int, bool) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}
