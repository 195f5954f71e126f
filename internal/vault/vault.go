// Package vault keeps the personally identifiable parts of transaction descriptions out of
// the transaction store. Transactions only carry the opaque reference a vault returns.
package vault

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/castlemilk/pfinance/statements/internal/normalize"
)

//go:generate mockgen -source=vault.go -destination=vault_mock.go -package=vault

// Vault stores a PII fragment for an account and returns a reference to it.
type Vault interface {
	Store(ctx context.Context, accountID string, frag normalize.Fragment) (string, error)
}

// refNamespace scopes content-derived references.
var refNamespace = uuid.MustParse("6f1c2a4e-8b7d-4f3a-9c2e-5d1b0a7e3f64")

// Ref derives the reference for a fragment. The same account and fragment always map to the
// same reference, so re-ingesting a statement does not grow the vault.
func Ref(accountID string, frag normalize.Fragment) string {
	accounts := append([]string(nil), frag.AccountNumbers...)
	handles := append([]string(nil), frag.Handles...)
	sort.Strings(accounts)
	sort.Strings(handles)

	key := strings.Join([]string{
		accountID,
		strings.Join(accounts, ","),
		strings.Join(handles, ","),
		strings.ToLower(frag.Counterparty),
	}, "\x00")
	return uuid.NewSHA1(refNamespace, []byte(key)).String()
}

// Entry is a stored fragment.
type Entry struct {
	AccountID      string    `firestore:"accountId"`
	AccountNumbers []string  `firestore:"accountNumbers"`
	Handles        []string  `firestore:"handles"`
	Counterparty   string    `firestore:"counterparty"`
	CreatedAt      time.Time `firestore:"createdAt"`
}

// MemoryVault is an in-memory Vault for local development and tests.
type MemoryVault struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryVault creates an empty in-memory vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{entries: make(map[string]Entry)}
}

func (v *MemoryVault) Store(ctx context.Context, accountID string, frag normalize.Fragment) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := Ref(accountID, frag)

	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.entries[ref]; !ok {
		v.entries[ref] = Entry{
			AccountID:      accountID,
			AccountNumbers: frag.AccountNumbers,
			Handles:        frag.Handles,
			Counterparty:   frag.Counterparty,
			CreatedAt:      time.Now(),
		}
	}
	return ref, nil
}

// Get returns the entry stored under ref.
func (v *MemoryVault) Get(ref string) (Entry, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	e, ok := v.entries[ref]
	return e, ok
}

// Len returns the number of stored entries.
func (v *MemoryVault) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries)
}
