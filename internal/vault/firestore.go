package vault

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/castlemilk/pfinance/statements/internal/normalize"
)

const vaultCollection = "piiVault"

// FirestoreVault stores fragments in the piiVault collection, one document per reference.
type FirestoreVault struct {
	client *firestore.Client
}

// NewFirestoreVault creates a Firestore-backed vault.
func NewFirestoreVault(client *firestore.Client) *FirestoreVault {
	return &FirestoreVault{client: client}
}

func (v *FirestoreVault) Store(ctx context.Context, accountID string, frag normalize.Fragment) (string, error) {
	ref := Ref(accountID, frag)
	entry := Entry{
		AccountID:      accountID,
		AccountNumbers: frag.AccountNumbers,
		Handles:        frag.Handles,
		Counterparty:   frag.Counterparty,
		CreatedAt:      time.Now(),
	}
	// Content-derived ids make the write idempotent.
	if _, err := v.client.Collection(vaultCollection).Doc(ref).Set(ctx, entry); err != nil {
		return "", fmt.Errorf("failed to store vault entry: %w", err)
	}
	return ref, nil
}
