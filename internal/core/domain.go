package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	Income  TransactionType = "gelir"
	Expense TransactionType = "gider"

	Fixed  PaymentType = "fixed"
	Custom PaymentType = "custom"

	Pending PaymentStatus = "pending"
	Paid    PaymentStatus = "paid"
)

const (
	HighlightPayment       HighlightType = "payment"
	HighlightCardStatement HighlightType = "card-statement"
	HighlightCardDue       HighlightType = "card-due"
	HighlightIncome        HighlightType = "income"
	HighlightExpense       HighlightType = "expense"
	HighlightNewlyAdded    HighlightType = "newlyAdded"
)

type (
	TransactionType string
	PaymentType     string
	PaymentStatus   string
	HighlightType   string

	// Date is a calendar day. The clock part is always midnight UTC.
	Date struct {
		time.Time
	}

	// DayOfMonth is an optional day-of-month. It decodes from a JSON number or
	// a numeric string; anything else leaves it unset.
	DayOfMonth struct {
		N  int
		OK bool
	}

	Transaction struct {
		ID          string          `json:"id,omitempty"`
		Date        string          `json:"date"`
		Type        TransactionType `json:"type"`
		Amount      float64         `json:"amount"`
		Description string          `json:"description"`
	}

	Payment struct {
		ID          string        `json:"id,omitempty"`
		PaymentType PaymentType   `json:"paymentType"`
		Name        string        `json:"name"`
		Amount      float64       `json:"amount"`
		Status      PaymentStatus `json:"status"`
		Date        string        `json:"date,omitempty"`
		PaymentDay  DayOfMonth    `json:"paymentDay"`
	}

	BankCard struct {
		ID             string  `json:"id,omitempty"`
		BankName       string  `json:"bankName"`
		Nickname       string  `json:"nickname,omitempty"`
		StatementDate  string  `json:"statementDate,omitempty"`
		PaymentDueDate string  `json:"paymentDueDate,omitempty"`
		Limit          float64 `json:"limit,omitempty"`
	}

	// HighlightedDate is one calendar event. It is never persisted.
	HighlightedDate struct {
		Date        Date          `json:"date"`
		Type        HighlightType `json:"type"`
		Description string        `json:"description"`
	}

	NotificationPreferences struct {
		Enabled  bool            `json:"enabled"`
		LeadDays int             `json:"leadDays"`
		Types    []HighlightType `json:"types,omitempty"`
	}
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidDay         = errors.New("invalid day")
	ErrInvalidMonth       = errors.New("invalid month")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyDescription   = errors.New("empty description")
	ErrEmptyName          = errors.New("empty name")
	ErrEmptyBankName      = errors.New("empty bank name")
	ErrInvalidType        = errors.New("invalid type")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidInstallment = errors.New("invalid installment count")
)

// ValidationError reports which field of an entity failed validation.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on '%s': %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, ok := ParseDate(s)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	*d = parsed
	return nil
}

// Day returns a set day-of-month value.
func Day(n int) DayOfMonth {
	return DayOfMonth{N: n, OK: true}
}

func (d DayOfMonth) IsZero() bool {
	return !d.OK
}

func (d DayOfMonth) MarshalJSON() ([]byte, error) {
	if !d.OK {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(d.N)), nil
}

func (d *DayOfMonth) UnmarshalJSON(b []byte) error {
	*d = DayOfMonth{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	switch v := raw.(type) {
	case float64:
		*d = Day(int(v))
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*d = Day(n)
		}
	}
	return nil
}

// Label is the name a card is shown with.
func (c BankCard) Label() string {
	if strings.TrimSpace(c.Nickname) != "" {
		return c.Nickname
	}
	return c.BankName
}

func (t Transaction) Validate() error {
	if _, ok := ParseDate(t.Date); !ok {
		return invalid("date", ErrInvalidDate)
	}
	if t.Type != Income && t.Type != Expense {
		return invalid("type", ErrInvalidType)
	}
	if t.Amount < 0 {
		return invalid("amount", ErrInvalidAmount)
	}
	if strings.TrimSpace(t.Description) == "" {
		return invalid("description", ErrEmptyDescription)
	}
	if len(t.Description) > 200 {
		return invalid("description", errors.New("description too long (max 200 characters)"))
	}
	return nil
}

func (p Payment) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return invalid("name", ErrEmptyName)
	}
	if p.Amount < 0 {
		return invalid("amount", ErrInvalidAmount)
	}
	switch p.Status {
	case Pending, Paid:
	default:
		return invalid("status", ErrInvalidStatus)
	}
	switch p.PaymentType {
	case Custom:
		if _, ok := ParseDate(p.Date); !ok {
			return invalid("date", ErrInvalidDate)
		}
	case Fixed:
		if !p.PaymentDay.OK || p.PaymentDay.N < 1 || p.PaymentDay.N > 31 {
			return invalid("paymentDay", ErrInvalidDay)
		}
	default:
		return invalid("paymentType", ErrInvalidType)
	}
	return nil
}

func (c BankCard) Validate() error {
	if strings.TrimSpace(c.BankName) == "" {
		return invalid("bankName", ErrEmptyBankName)
	}
	if c.Limit < 0 {
		return invalid("limit", ErrInvalidAmount)
	}
	return nil
}

// DefaultNotificationPreferences returns preferences for a user that never saved any.
func DefaultNotificationPreferences() NotificationPreferences {
	return NotificationPreferences{
		Enabled:  false,
		LeadDays: 3,
		Types:    []HighlightType{HighlightPayment, HighlightCardDue},
	}
}

func (n NotificationPreferences) Validate() error {
	if n.LeadDays < 0 || n.LeadDays > 31 {
		return invalid("leadDays", ErrInvalidDay)
	}
	for _, t := range n.Types {
		switch t {
		case HighlightPayment, HighlightCardStatement, HighlightCardDue, HighlightIncome, HighlightExpense:
		default:
			return invalid("types", ErrInvalidType)
		}
	}
	return nil
}

// Wants reports whether reminders are requested for the highlight type.
func (n NotificationPreferences) Wants(t HighlightType) bool {
	for _, want := range n.Types {
		if want == t {
			return true
		}
	}
	return false
}
