package core

import "testing"

func TestSummarize(t *testing.T) {
	txs := []Transaction{
		{Date: "2024-01-05", Type: Expense, Amount: 250, Description: "Market"},
		{Date: "10.01.2024", Type: Income, Amount: 1000.5, Description: "Maaş"},
		{Date: "2024-02-01", Type: Expense, Amount: 99, Description: "Next month"},
		{Date: "bozuk", Type: Expense, Amount: 5, Description: "Unreadable"},
	}
	ov := Summarize(txs, 2024, 1)
	if ov.Count != 2 || ov.Income != 1000.5 || ov.Expense != 250 || ov.Net != 750.5 {
		t.Fatalf("unexpected overview: %+v", ov)
	}
}
