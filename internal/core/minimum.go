package core

import (
	"strings"
	"sync"
)

// MinimumPaymentRule computes the minimum amount due for a card statement.
type MinimumPaymentRule interface {
	Minimum(balance, creditLimit float64) float64
}

// TieredRule charges LowRate of the balance for cards whose limit is at most
// Threshold and HighRate above it.
type TieredRule struct {
	Threshold float64
	LowRate   float64
	HighRate  float64
}

// DefaultMinimumPaymentRule is the regulatory tier used when a bank has no rule of its own.
var DefaultMinimumPaymentRule = TieredRule{Threshold: 25000, LowRate: 0.20, HighRate: 0.40}

func (r TieredRule) Minimum(balance, creditLimit float64) float64 {
	if balance <= 0 {
		return 0
	}
	rate := r.LowRate
	if creditLimit > r.Threshold {
		rate = r.HighRate
	}
	return capped(balance, balance*rate)
}

// FloorRule applies Rule and never asks for less than Floor.
type FloorRule struct {
	Rule  MinimumPaymentRule
	Floor float64
}

func (r FloorRule) Minimum(balance, creditLimit float64) float64 {
	if balance <= 0 {
		return 0
	}
	m := r.Rule.Minimum(balance, creditLimit)
	if m < r.Floor {
		m = r.Floor
	}
	return capped(balance, m)
}

func capped(balance, m float64) float64 {
	if m > balance {
		m = balance
	}
	return RoundKurus(m)
}

var (
	minimumRulesMu sync.RWMutex
	minimumRules   = map[string]MinimumPaymentRule{}
)

// MinimumPaymentRuleFor returns the rule registered for bank, or the default rule.
func MinimumPaymentRuleFor(bank string) MinimumPaymentRule {
	minimumRulesMu.RLock()
	defer minimumRulesMu.RUnlock()
	if rule, ok := minimumRules[normalizeBank(bank)]; ok {
		return rule
	}
	return DefaultMinimumPaymentRule
}

// RegisterMinimumPaymentRule installs a bank specific rule.
func RegisterMinimumPaymentRule(bank string, rule MinimumPaymentRule) {
	minimumRulesMu.Lock()
	defer minimumRulesMu.Unlock()
	minimumRules[normalizeBank(bank)] = rule
}

// UnregisterMinimumPaymentRule drops a bank specific rule.
func UnregisterMinimumPaymentRule(bank string) {
	minimumRulesMu.Lock()
	defer minimumRulesMu.Unlock()
	delete(minimumRules, normalizeBank(bank))
}

// MinimumPayment is the minimum due on card for the given statement balance.
func MinimumPayment(card BankCard, balance float64) float64 {
	return MinimumPaymentRuleFor(card.BankName).Minimum(balance, card.Limit)
}

func normalizeBank(bank string) string {
	return strings.ToLower(strings.Join(strings.Fields(bank), " "))
}
