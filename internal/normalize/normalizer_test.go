package normalize

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlemilk/pfinance/statements/internal/domain"
)

var fixedNow = time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC)

func TestParseDate(t *testing.T) {
	tests := []struct {
		input string
		want  civil.Date
		ok    bool
	}{
		{"2025-10-15", civil.Date{Year: 2025, Month: 10, Day: 15}, true},
		{"15/10/2025", civil.Date{Year: 2025, Month: 10, Day: 15}, true},
		{"05/10/2025", civil.Date{Year: 2025, Month: 10, Day: 5}, true}, // day-first wins
		{"5/1/2025", civil.Date{Year: 2025, Month: 1, Day: 5}, true},
		{"15-10-2025", civil.Date{Year: 2025, Month: 10, Day: 15}, true},
		{"15.10.2025", civil.Date{Year: 2025, Month: 10, Day: 15}, true},
		{"15 Oct 2025", civil.Date{Year: 2025, Month: 10, Day: 15}, true},
		{"15-OCT-25", civil.Date{Year: 2025, Month: 10, Day: 15}, true},
		{"15/10/25", civil.Date{Year: 2025, Month: 10, Day: 15}, true},
		{"01/01/70", civil.Date{Year: 2070, Month: 1, Day: 1}, true}, // current century pivot
		{"Oct 15, 2025", civil.Date{Year: 2025, Month: 10, Day: 15}, true},
		{"10/25/2025", civil.Date{Year: 2025, Month: 10, Day: 25}, true}, // only month-first fits
		{"  15/10/2025  ", civil.Date{Year: 2025, Month: 10, Day: 15}, true},
		{"not a date", civil.Date{}, false},
		{"", civil.Date{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, _, ok := ParseDate(tt.input, fixedNow, time.UTC)
			if ok != tt.ok {
				t.Fatalf("ParseDate(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseDate_WithTime(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	date, ts, ok := ParseDate("15/10/2025 14:32:10", fixedNow, ist)
	require.True(t, ok)
	assert.Equal(t, civil.Date{Year: 2025, Month: 10, Day: 15}, date)
	require.NotNil(t, ts)
	assert.Equal(t, time.Date(2025, 10, 15, 14, 32, 10, 0, ist), *ts)

	_, ts, ok = ParseDate("15/10/2025", fixedNow, ist)
	require.True(t, ok)
	assert.Nil(t, ts)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input    string
		want     string
		negative bool
		hint     Direction
		currency string
		ok       bool
	}{
		{"1250.00", "1250", false, DirectionNone, "", true},
		{"1,23,456.78", "123456.78", false, DirectionNone, "", true},
		{"₹ 500", "500", false, DirectionNone, "INR", true},
		{"Rs. 1,000.50", "1000.5", false, DirectionNone, "INR", true},
		{"(500.00)", "500", true, DirectionNone, "", true},
		{"-45.00", "45", true, DirectionNone, "", true},
		{"45.00-", "45", true, DirectionNone, "", true},
		{"1,250.00 Cr", "1250", false, DirectionCredit, "", true},
		{"300.00DR", "300", false, DirectionDebit, "", true},
		{"$12.99", "12.99", false, DirectionNone, "USD", true},
		{"", "0", false, DirectionNone, "", false},
		{"abc", "0", false, DirectionNone, "", false},
		{"-", "0", false, DirectionNone, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseAmount(tt.input)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.True(t, got.Value.Equal(decimal.RequireFromString(tt.want)), "value = %s, want %s", got.Value, tt.want)
			assert.False(t, got.Value.IsNegative())
			assert.Equal(t, tt.negative, got.Negative)
			assert.Equal(t, tt.hint, got.Hint)
			assert.Equal(t, tt.currency, got.Currency)
		})
	}
}

func TestInferType(t *testing.T) {
	tests := []struct {
		description string
		want        domain.TxType
	}{
		{"NEFT/ACME CORP/SALARY OCT", domain.TxTypeCredit},
		{"REFUND FROM AMAZON", domain.TxTypeCredit},
		{"UPI/Swiggy Ltd/swiggyupi@axb/Payment", domain.TxTypeDebit},
		{"REFUND OF BILL PAYMENT", domain.TxTypeCredit}, // credit keywords beat debit keywords
		{"SWEEP TO OWN ACCOUNT", domain.TxTypeTransfer},
		{"SOMETHING ODD", domain.TxTypeDebit},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			if got := InferType(tt.description); got != tt.want {
				t.Errorf("InferType(%q) = %q, want %q", tt.description, got, tt.want)
			}
		})
	}
}

func TestDetectChannel(t *testing.T) {
	tests := []struct {
		description string
		want        *domain.Channel
	}{
		{"UPI/Swiggy Ltd/swiggyupi@axb/Payment", domain.ChannelPtr(domain.ChannelInstantTransfer)},
		{"IMPS-123456789012-RAVI", domain.ChannelPtr(domain.ChannelInstantTransfer)},
		{"NEFT/N123456789/ACME CORP", domain.ChannelPtr(domain.ChannelWireTransfer)},
		{"ATM WDL MG ROAD", domain.ChannelPtr(domain.ChannelATM)},
		{"CHQ DEP 000123", domain.ChannelPtr(domain.ChannelCheque)},
		{"POS 512345XXXXXX1234 AMAZON PAY", domain.ChannelPtr(domain.ChannelCard)},
		{"CASH DEPOSIT BRANCH", domain.ChannelPtr(domain.ChannelCash)},
		{"INTEREST PAID", nil},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectChannel(tt.description))
		})
	}
}

func TestExtractMerchant(t *testing.T) {
	tests := []struct {
		description string
		want        string
	}{
		{"UPI/Swiggy Ltd/swiggyupi@axb/Payment", "Swiggy Ltd"},
		{"UPI/DR/512345678901/ZOMATO/zomato@hdfc", "ZOMATO"},
		{"UPI-SWIGGY-SWIGGY@ICICI-ICIC0DC0099-512345678901-PAYMENT", "SWIGGY"},
		{"NEFT/N123456789/ACME CORP/HDFC0000001", "ACME CORP"},
		{"POS 512345XXXXXX1234 AMAZON PAY IN 15/10", "AMAZON PAY IN"},
		{"ATM WDL MG ROAD BRANCH", "BRANCH"},
		{"", ""},
		{"123 456", ""},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			if got := ExtractMerchant(tt.description); got != tt.want {
				t.Errorf("ExtractMerchant(%q) = %q, want %q", tt.description, got, tt.want)
			}
		})
	}
}

func TestExtractPII(t *testing.T) {
	f := ExtractPII("NEFT to Ravi Kumar/50100123456789/ravi.k@okhdfc")
	assert.Equal(t, []string{"50100123456789"}, f.AccountNumbers)
	assert.Equal(t, []string{"ravi.k@okhdfc"}, f.Handles)
	assert.Equal(t, "Ravi Kumar", f.Counterparty)
	assert.False(t, f.Empty())

	assert.True(t, ExtractPII("INTEREST PAID").Empty())
	// 7 digits is too short to be an account number, 21 too long
	assert.Empty(t, ExtractPII("REF 1234567 X123456789012345678901").AccountNumbers)
}

func TestMaskPII(t *testing.T) {
	got := MaskPII("NEFT/50100123456789/ravi.k@okhdfc")
	assert.Equal(t, "NEFT/XXXX6789/***@okhdfc", got)
	assert.Equal(t, "ATM 1234567", MaskPII("ATM 1234567"))
}

func TestCleanDescription(t *testing.T) {
	assert.Equal(t, "UPI SWIGGY LTD @AXB PAYMENT", CleanDescription("UPI/Swiggy Ltd/***@axb/Payment"))
	assert.Equal(t, "ABC 123", CleanDescription("ＡＢＣ－１２３"))
	assert.Equal(t, "", CleanDescription(" -- "))
}

func newTestNormalizer() *Normalizer {
	return New(Config{HomeCurrency: "INR", Location: time.UTC}).WithClock(func() time.Time { return fixedNow })
}

func TestNormalize_DebitCreditColumns(t *testing.T) {
	n := newTestNormalizer()
	res, ok := n.Normalize(domain.RawRow{
		DateText:     "15/10/2025",
		Description:  "UPI/Swiggy Ltd/swiggyupi@axb/Payment",
		Debit:        "(500.00)",
		Credit:       "",
		Amount:       "999.00 CR",
		BalanceAfter: "(500.00)",
		Origin:       "delimited",
		Line:         3,
	}, RowMeta{AccountID: "acct-1", File: "oct.csv"})
	require.True(t, ok)

	txn := res.Txn
	assert.NotEmpty(t, txn.ID)
	assert.Equal(t, "acct-1", txn.AccountID)
	assert.Equal(t, civil.Date{Year: 2025, Month: 10, Day: 15}, txn.Date)
	assert.Equal(t, domain.TxTypeDebit, txn.Type, "debit column beats the generic amount column")
	assert.True(t, txn.Amount.Equal(decimal.RequireFromString("500.00")))
	assert.False(t, txn.Amount.IsNegative())
	require.NotNil(t, txn.BalanceAfter)
	assert.True(t, txn.BalanceAfter.Equal(decimal.RequireFromString("-500.00")))
	assert.Equal(t, "INR", txn.Currency)
	assert.Equal(t, "Swiggy Ltd", txn.MerchantRaw)
	assert.Equal(t, domain.ChannelPtr(domain.ChannelInstantTransfer), txn.Channel)
	assert.Equal(t, "delimited:oct.csv", txn.Source)
	assert.Equal(t, "UPI/Swiggy Ltd/***@axb/Payment", txn.RawDescription)
	assert.Equal(t, "UPI SWIGGY LTD @AXB PAYMENT", txn.CleanDescription)
	assert.NotEmpty(t, txn.Fingerprint)
	assert.Equal(t, []string{"swiggyupi@axb"}, res.PII.Handles)
	assert.Empty(t, res.Warnings)
}

func TestNormalize_CreditColumn(t *testing.T) {
	n := newTestNormalizer()
	res, ok := n.Normalize(domain.RawRow{
		DateText:    "2025-10-01",
		Description: "NEFT/N123456789/ACME CORP/SALARY",
		Debit:       "0.00",
		Credit:      "85,000.00",
	}, RowMeta{AccountID: "acct-1"})
	require.True(t, ok)
	assert.Equal(t, domain.TxTypeCredit, res.Txn.Type)
	assert.True(t, res.Txn.Amount.Equal(decimal.RequireFromString("85000")))
}

func TestNormalize_AmountColumnHint(t *testing.T) {
	n := newTestNormalizer()
	res, ok := n.Normalize(domain.RawRow{
		DateText:    "15 Oct 2025",
		Description: "AMAZON",
		Amount:      "1,250.00 Cr",
	}, RowMeta{})
	require.True(t, ok)
	assert.Equal(t, domain.TxTypeCredit, res.Txn.Type)
}

func TestNormalize_DateFallback(t *testing.T) {
	n := newTestNormalizer()
	res, ok := n.Normalize(domain.RawRow{
		DateText:    "garbage",
		Description: "ATM WDL",
		Amount:      "2000",
		Line:        7,
	}, RowMeta{})
	require.True(t, ok)
	assert.Equal(t, civil.DateOf(fixedNow), res.Txn.Date)
	assert.True(t, res.Txn.HasFlag(domain.FlagDateFallback))
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, WarnDateFallback, res.Warnings[0].Code)
	assert.Equal(t, 7, res.Warnings[0].Line)
}

func TestNormalize_Dropped(t *testing.T) {
	n := newTestNormalizer()

	tests := []struct {
		name string
		row  domain.RawRow
	}{
		{"no date and no description", domain.RawRow{Amount: "100.00"}},
		{"no amount", domain.RawRow{DateText: "15/10/2025", Description: "UPI/X"}},
		{"unreadable amount", domain.RawRow{DateText: "15/10/2025", Description: "UPI/X", Amount: "n/a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := n.Normalize(tt.row, RowMeta{})
			assert.False(t, ok)
			require.NotEmpty(t, res.Warnings)
			assert.Equal(t, WarnRowMalformed, res.Warnings[0].Code)
		})
	}
}

func TestNormalize_FingerprintStable(t *testing.T) {
	n := newTestNormalizer()
	row := domain.RawRow{DateText: "15/10/2025", Description: "UPI/Swiggy Ltd/swiggyupi@axb/Payment", Amount: "1250.00"}

	a, ok := n.Normalize(row, RowMeta{AccountID: "acct-1"})
	require.True(t, ok)
	b, ok := n.Normalize(row, RowMeta{AccountID: "acct-1"})
	require.True(t, ok)

	assert.NotEqual(t, a.Txn.ID, b.Txn.ID)
	assert.Equal(t, a.Txn.Fingerprint, b.Txn.Fingerprint)
}

func TestNormalize_DateFallbackFingerprintIgnoresIngestDay(t *testing.T) {
	row := domain.RawRow{DateText: "garbage-1", Description: "ATM WDL", Amount: "2000"}
	meta := RowMeta{AccountID: "acct-1"}

	today, ok := newTestNormalizer().Normalize(row, meta)
	require.True(t, ok)
	nextWeek, ok := New(Config{HomeCurrency: "INR", Location: time.UTC}).
		WithClock(func() time.Time { return fixedNow.AddDate(0, 0, 7) }).
		Normalize(row, meta)
	require.True(t, ok)

	assert.NotEqual(t, today.Txn.Date, nextWeek.Txn.Date)
	assert.Equal(t, today.Txn.Fingerprint, nextWeek.Txn.Fingerprint)

	row.DateText = "garbage-2"
	other, ok := newTestNormalizer().Normalize(row, meta)
	require.True(t, ok)
	assert.NotEqual(t, today.Txn.Fingerprint, other.Txn.Fingerprint)
}
