package core

import (
	"math"
	"strings"
)

// Installment is a card purchase split into equal monthly parts.
type Installment struct {
	ID          string  `json:"id,omitempty"`
	CardID      string  `json:"cardId"`
	Description string  `json:"description"`
	TotalAmount float64 `json:"totalAmount"`
	Count       int     `json:"count"`
	FirstDate   string  `json:"firstDate"`
}

// InstallmentEntry is one month of an installment plan.
type InstallmentEntry struct {
	Number int     `json:"number"`
	Date   Date    `json:"date"`
	Amount float64 `json:"amount"`
}

func (i Installment) Validate() error {
	if strings.TrimSpace(i.Description) == "" {
		return invalid("description", ErrEmptyDescription)
	}
	if i.TotalAmount <= 0 {
		return invalid("totalAmount", ErrInvalidAmount)
	}
	if i.Count < 1 || i.Count > 36 {
		return invalid("count", ErrInvalidInstallment)
	}
	if _, ok := ParseDate(i.FirstDate); !ok {
		return invalid("firstDate", ErrInvalidDate)
	}
	return nil
}

// Schedule lists the monthly parts. The kuruş lost to rounding goes on the
// first entry so the parts always add up to TotalAmount.
func (i Installment) Schedule() ([]InstallmentEntry, error) {
	if err := i.Validate(); err != nil {
		return nil, err
	}
	first, _ := ParseDate(i.FirstDate)

	totalKurus := int64(math.Round(i.TotalAmount * 100))
	part := totalKurus / int64(i.Count)
	remainder := totalKurus - part*int64(i.Count)

	out := make([]InstallmentEntry, i.Count)
	for n := 0; n < i.Count; n++ {
		kurus := part
		if n == 0 {
			kurus += remainder
		}
		out[n] = InstallmentEntry{
			Number: n + 1,
			Date:   AddMonthsClamped(first, n),
			Amount: float64(kurus) / 100,
		}
	}
	return out, nil
}
