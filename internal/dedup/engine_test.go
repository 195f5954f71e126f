package dedup

import (
	"bytes"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlemilk/pfinance/statements/internal/domain"
)

const account = "acct-1"

var fixedNow = time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC)

func newTxn(t *testing.T, id, date, amount, desc string) domain.CanonicalTransaction {
	t.Helper()
	d, err := civil.ParseDate(date)
	require.NoError(t, err)
	amt := decimal.RequireFromString(amount)
	return domain.CanonicalTransaction{
		ID:               id,
		AccountID:        account,
		Date:             d,
		Type:             domain.TxTypeDebit,
		Amount:           amt,
		CleanDescription: desc,
		Fingerprint:      domain.Fingerprint(account, d, domain.TxTypeDebit, amt, desc),
	}
}

func newTestEngine(policy Policy) *Engine {
	cfg := DefaultConfig
	cfg.Policy = policy
	return NewEngine(cfg, zerolog.Nop()).WithClock(func() time.Time { return fixedNow })
}

func byID(txns []domain.CanonicalTransaction) map[string]domain.CanonicalTransaction {
	m := make(map[string]domain.CanonicalTransaction, len(txns))
	for _, t := range txns {
		m[t.ID] = t
	}
	return m
}

func TestRun_DuplicateWithinWindow(t *testing.T) {
	batch := []domain.CanonicalTransaction{
		newTxn(t, "a", "2025-10-15", "1250.00", "SWIGGY ORDER 12345"),
		newTxn(t, "b", "2025-10-16", "1250.00", "SWIGGY ORDER 12346"),
	}

	tests := []struct {
		policy   Policy
		survivor string
		absorbed string
	}{
		{PolicyKeepFirst, "a", "b"},
		{PolicyKeepLast, "b", "a"},
		{PolicySumAndFlag, "a", "b"},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			res := newTestEngine(tt.policy).Run(account, nil, batch)
			got := byID(res.Batch)

			s, a := got[tt.survivor], got[tt.absorbed]
			assert.False(t, s.IsDuplicate)
			assert.Equal(t, 1, s.DuplicateCount)
			assert.True(t, a.IsDuplicate)
			assert.Equal(t, tt.survivor, a.DuplicateOf)
			assert.Equal(t, 0, a.DuplicateCount)

			require.Len(t, res.Clusters, 1)
			assert.Equal(t, tt.survivor, res.Clusters[0].SurvivorID)
			assert.Equal(t, []string{tt.absorbed}, res.Clusters[0].AbsorbedIDs)

			assert.True(t, s.Amount.Equal(decimal.RequireFromString("1250.00")), "amount is never rewritten")
			if tt.policy == PolicySumAndFlag {
				require.NotNil(t, s.AggregateAmount)
				assert.Equal(t, "2500.00", s.AggregateAmount.StringFixed(2))
				assert.True(t, s.HasFlag(domain.FlagSummedDuplicates))
			} else {
				assert.Nil(t, s.AggregateAmount)
				assert.False(t, s.HasFlag(domain.FlagSummedDuplicates))
			}
		})
	}

	// the input slice is not modified
	assert.False(t, batch[1].IsDuplicate)
}

func TestRun_NotCandidates(t *testing.T) {
	base := newTxn(t, "a", "2025-10-15", "1250.00", "SWIGGY ORDER 12345")

	credit := newTxn(t, "b", "2025-10-15", "1250.00", "SWIGGY ORDER 12345")
	credit.Type = domain.TxTypeCredit
	credit.Fingerprint = "refund"

	otherAccount := newTxn(t, "b", "2025-10-15", "1250.00", "SWIGGY ORDER 12345")
	otherAccount.AccountID = "acct-2"

	tests := []struct {
		name  string
		other domain.CanonicalTransaction
	}{
		{"outside window", newTxn(t, "b", "2025-10-17", "1250.00", "SWIGGY ORDER 12345")},
		{"different amount", newTxn(t, "b", "2025-10-15", "1250.01", "SWIGGY ORDER 12345")},
		{"dissimilar description", newTxn(t, "b", "2025-10-15", "1250.00", "AMAZON PAY INDIA")},
		{"different type", credit},
		{"different account", otherAccount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestEngine(PolicyKeepFirst).Run(account, nil, []domain.CanonicalTransaction{base, tt.other})
			for _, txn := range res.Batch {
				assert.False(t, txn.IsDuplicate, txn.ID)
			}
			assert.Empty(t, res.Clusters)
			assert.False(t, Matches(DefaultConfig, base, tt.other))
		})
	}
}

func TestRun_TimestampsNarrowTheWindow(t *testing.T) {
	a := newTxn(t, "a", "2025-10-15", "99.00", "UBER TRIP")
	b := newTxn(t, "b", "2025-10-16", "99.00", "UBER TRIP")
	ta := time.Date(2025, 10, 15, 1, 0, 0, 0, time.UTC)
	tb := time.Date(2025, 10, 16, 23, 0, 0, 0, time.UTC)
	a.Timestamp, b.Timestamp = &ta, &tb

	assert.False(t, Matches(DefaultConfig, a, b))
}

func TestRun_OrderIndependent(t *testing.T) {
	rows := []domain.CanonicalTransaction{
		newTxn(t, "z", "2025-10-15", "500.00", "ZOMATO ORDER"),
		newTxn(t, "y", "2025-10-15", "500.00", "ZOMATO ORDER"),
		newTxn(t, "x", "2025-10-16", "500.00", "ZOMATO ORDER"),
		newTxn(t, "w", "2025-10-20", "75.00", "CHAI POINT"),
	}
	reversed := make([]domain.CanonicalTransaction, len(rows))
	for i, r := range rows {
		reversed[len(rows)-1-i] = r
	}

	e := newTestEngine(PolicyKeepFirst)
	first := byID(e.Run(account, nil, rows).Batch)
	second := byID(e.Run(account, nil, reversed).Batch)

	for id, txn := range first {
		assert.Equal(t, txn.IsDuplicate, second[id].IsDuplicate, id)
		assert.Equal(t, txn.DuplicateOf, second[id].DuplicateOf, id)
		assert.Equal(t, txn.DuplicateCount, second[id].DuplicateCount, id)
	}
	assert.False(t, first["y"].IsDuplicate, "same date and content: lowest id survives")
	assert.Equal(t, 2, first["y"].DuplicateCount)
	assert.False(t, first["w"].IsDuplicate)
}

func TestRun_OneSurvivorPerCluster(t *testing.T) {
	var batch []domain.CanonicalTransaction
	for i, d := range []string{"2025-10-01", "2025-10-01", "2025-10-02", "2025-10-05", "2025-10-05"} {
		batch = append(batch, newTxn(t, string(rune('a'+i)), d, "300.00", "AIRTEL RECHARGE"))
	}
	batch = append(batch, newTxn(t, "f", "2025-10-05", "300.00", "NETFLIX SUBSCRIPTION"))

	for _, policy := range []Policy{PolicyKeepFirst, PolicyKeepLast, PolicySumAndFlag} {
		t.Run(string(policy), func(t *testing.T) {
			res := newTestEngine(policy).Run(account, nil, batch)
			got := byID(res.Batch)

			survivors := 0
			for _, txn := range res.Batch {
				if txn.IsSurvivor() {
					survivors++
					assert.Empty(t, txn.DuplicateOf)
					continue
				}
				target, ok := got[txn.DuplicateOf]
				require.True(t, ok, "duplicate_of must reference a batch row")
				assert.True(t, target.IsSurvivor(), "absorbed rows never head another cluster")
			}
			// {a,b,c} and {d,e} cluster, f stands alone
			assert.Equal(t, 3, survivors)
			assert.Len(t, res.Clusters, 2)
		})
	}
}

func TestRun_PriorSurvivorsAreNeverDemoted(t *testing.T) {
	prior := newTxn(t, "p", "2025-10-16", "1250.00", "SWIGGY ORDER 12345")
	prior.DuplicateCount = 1
	batch := []domain.CanonicalTransaction{
		newTxn(t, "a", "2025-10-15", "1250.00", "SWIGGY ORDER 12345"),
	}

	for _, policy := range []Policy{PolicyKeepFirst, PolicyKeepLast, PolicySumAndFlag} {
		t.Run(string(policy), func(t *testing.T) {
			res := newTestEngine(policy).Run(account, []domain.CanonicalTransaction{prior}, batch)

			assert.True(t, res.Batch[0].IsDuplicate)
			assert.Equal(t, "p", res.Batch[0].DuplicateOf)

			require.Len(t, res.UpdatedPrior, 1)
			up := res.UpdatedPrior[0]
			assert.Equal(t, "p", up.ID)
			assert.False(t, up.IsDuplicate)
			assert.Equal(t, 2, up.DuplicateCount)
			assert.Equal(t, fixedNow, up.UpdatedAt)
			assert.True(t, res.Clusters[0].Persisted)

			if policy == PolicySumAndFlag {
				require.NotNil(t, up.AggregateAmount)
				assert.Equal(t, "2500.00", up.AggregateAmount.StringFixed(2))
			}
		})
	}
}

func TestRun_PriorAbsorbedRowsDoNotSeedClusters(t *testing.T) {
	absorbed := newTxn(t, "p2", "2025-10-15", "80.00", "OLA CABS")
	absorbed.IsDuplicate = true
	absorbed.DuplicateOf = "gone"

	res := newTestEngine(PolicyKeepFirst).Run(account, []domain.CanonicalTransaction{absorbed}, []domain.CanonicalTransaction{
		newTxn(t, "a", "2025-10-15", "80.00", "OLA CABS"),
	})
	assert.False(t, res.Batch[0].IsDuplicate)
	assert.Empty(t, res.UpdatedPrior)
}

func TestRun_Idempotent(t *testing.T) {
	e := newTestEngine(PolicyKeepFirst)
	file := func(prefix string) []domain.CanonicalTransaction {
		return []domain.CanonicalTransaction{
			newTxn(t, prefix+"1", "2025-10-15", "1250.00", "SWIGGY ORDER 12345"),
			newTxn(t, prefix+"2", "2025-10-16", "1250.00", "SWIGGY ORDER 12346"),
			newTxn(t, prefix+"3", "2025-10-18", "45000.00", "SALARY CREDIT ACME"),
			newTxn(t, prefix+"4", "2025-10-20", "649.00", "NETFLIX"),
		}
	}

	first := e.Run(account, nil, file("r1-"))
	var survivors []string
	for _, txn := range first.Batch {
		if txn.IsSurvivor() {
			survivors = append(survivors, txn.ID)
		}
	}
	require.Equal(t, []string{"r1-1", "r1-3", "r1-4"}, survivors)

	for _, policy := range []Policy{PolicyKeepFirst, PolicyKeepLast, PolicySumAndFlag} {
		t.Run(string(policy), func(t *testing.T) {
			e := newTestEngine(policy)
			first := e.Run(account, nil, file("r1-"))
			second := e.Run(account, first.Batch, file("r2-"))
			for i, txn := range second.Batch {
				assert.True(t, txn.IsDuplicate, txn.ID)
				assert.True(t, second.Stored[i], txn.ID)
				assert.Equal(t, 0, txn.DuplicateCount)
				assert.Nil(t, txn.AggregateAmount)
			}
			assert.Empty(t, second.UpdatedPrior, "stored survivors are left as they are")
			assert.Empty(t, second.Clusters)
		})
	}
}

func TestRun_ExtraCopyBeyondStoredRowsIsNew(t *testing.T) {
	prior := newTxn(t, "p", "2025-10-15", "80.00", "OLA CABS")
	batch := []domain.CanonicalTransaction{
		newTxn(t, "a", "2025-10-15", "80.00", "OLA CABS"),
		newTxn(t, "b", "2025-10-15", "80.00", "OLA CABS"),
	}

	res := newTestEngine(PolicySumAndFlag).Run(account, []domain.CanonicalTransaction{prior}, batch)
	assert.Equal(t, []bool{true, false}, res.Stored)
	for _, txn := range res.Batch {
		assert.Equal(t, "p", txn.DuplicateOf)
	}
	require.Len(t, res.UpdatedPrior, 1)
	up := res.UpdatedPrior[0]
	assert.Equal(t, 1, up.DuplicateCount)
	require.NotNil(t, up.AggregateAmount)
	assert.Equal(t, "160.00", up.AggregateAmount.StringFixed(2))
}

func TestRun_AmbiguousTieIsLogged(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig
	e := NewEngine(cfg, zerolog.New(&buf))

	prior := []domain.CanonicalTransaction{
		newTxn(t, "p-late", "2025-10-16", "200.00", "SWIGGY ORDER A2"),
		newTxn(t, "p-early", "2025-10-14", "200.00", "SWIGGY ORDER A1"),
	}
	batch := []domain.CanonicalTransaction{
		newTxn(t, "n", "2025-10-15", "200.00", "SWIGGY ORDER A3"),
	}

	res := e.Run(account, prior, batch)
	assert.Equal(t, 1, res.Ambiguities)
	assert.Equal(t, "p-early", res.Batch[0].DuplicateOf, "ties go to the earliest anchor")
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), "ambiguous duplicate match")
}

func TestRun_OtherAccountsPassThrough(t *testing.T) {
	other := newTxn(t, "o", "2025-10-15", "10.00", "X")
	other.AccountID = "acct-9"
	res := newTestEngine(PolicyKeepFirst).Run(account, nil, []domain.CanonicalTransaction{other, other})
	assert.False(t, res.Batch[0].IsDuplicate)
	assert.False(t, res.Batch[1].IsDuplicate)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig.Validate())
	assert.Error(t, Config{Window: -time.Hour, Threshold: 90, Policy: PolicyKeepFirst}.Validate())
	assert.Error(t, Config{Window: time.Hour, Threshold: 101, Policy: PolicyKeepFirst}.Validate())
	assert.Error(t, Config{Window: time.Hour, Threshold: 90, Policy: "merge"}.Validate())
}
