package domain

import (
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMerchantIDFor(t *testing.T) {
	tests := []struct {
		a, b string
		same bool
	}{
		{"Swiggy", "swiggy", true},
		{"  SWIGGY ", "Swiggy", true},
		{"Swiggy", "Zomato", false},
	}

	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			got := MerchantIDFor(tt.a) == MerchantIDFor(tt.b)
			if got != tt.same {
				t.Errorf("MerchantIDFor(%q) == MerchantIDFor(%q) = %v, want %v", tt.a, tt.b, got, tt.same)
			}
		})
	}

	assert.Empty(t, MerchantIDFor("   "))
	assert.Len(t, MerchantIDFor("Swiggy"), 16)
}

func TestFingerprint(t *testing.T) {
	date := civil.Date{Year: 2025, Month: 10, Day: 15}
	amount := decimal.RequireFromString("1250.00")

	base := Fingerprint("acct-1", date, TxTypeDebit, amount, "UPI SWIGGY")
	assert.Equal(t, base, Fingerprint("acct-1", date, TxTypeDebit, decimal.RequireFromString("1250"), "upi swiggy "))
	assert.NotEqual(t, base, Fingerprint("acct-2", date, TxTypeDebit, amount, "UPI SWIGGY"))
	assert.NotEqual(t, base, Fingerprint("acct-1", date.AddDays(1), TxTypeDebit, amount, "UPI SWIGGY"))
	assert.NotEqual(t, base, Fingerprint("acct-1", date, TxTypeCredit, amount, "UPI SWIGGY"))

	fallback := FallbackFingerprint("acct-1", " 15/1O/2025 ", TxTypeDebit, amount, "UPI SWIGGY")
	assert.Equal(t, fallback, FallbackFingerprint("acct-1", "15/1O/2025", TxTypeDebit, amount, "UPI SWIGGY"))
	assert.NotEqual(t, base, fallback)
}

func TestTxTypeValid(t *testing.T) {
	assert.True(t, TxTypeDebit.Valid())
	assert.True(t, TxTypeCredit.Valid())
	assert.True(t, TxTypeTransfer.Valid())
	assert.False(t, TxType("refund").Valid())
}

func TestWithFlag(t *testing.T) {
	tx := CanonicalTransaction{}
	flagged := tx.WithFlag(FlagDateFallback).WithFlag(FlagDateFallback)

	assert.False(t, tx.HasFlag(FlagDateFallback), "original must not be mutated")
	assert.Equal(t, []string{FlagDateFallback}, flagged.Flags)
}
