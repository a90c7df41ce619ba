package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAccount_IsActive(t *testing.T) {
	tests := []struct {
		name    string
		status  AccountStatus
		deleted bool
		want    bool
	}{
		{"active", AccountStatusActive, false, true},
		{"inactive", AccountStatusInactive, false, false},
		{"blocked", AccountStatusBlocked, false, false},
		{"deleted", AccountStatusActive, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Account{Status: tt.status, Deleted: tt.deleted}
			assert.Equal(t, tt.want, a.IsActive())
		})
	}
}

func TestAccount_IsApprovedAgent(t *testing.T) {
	assert.True(t, (&Account{Role: RoleAgent, Approved: true}).IsApprovedAgent())
	assert.False(t, (&Account{Role: RoleAgent}).IsApprovedAgent())
	assert.False(t, (&Account{Role: RoleUser, Approved: true}).IsApprovedAgent())
}

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAgent.Valid())
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("user").Valid())
	assert.False(t, Role("").Valid())
}

func TestTransaction_IsTerminal(t *testing.T) {
	tests := []struct {
		name   string
		status TransactionStatus
		want   bool
	}{
		{"pending", TransactionStatusPending, false},
		{"completed", TransactionStatusCompleted, true},
		{"failed", TransactionStatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := &Transaction{Status: tt.status}
			assert.Equal(t, tt.want, tx.IsTerminal())
		})
	}
}

func TestTransaction_Involves(t *testing.T) {
	from, to, other := uuid.New(), uuid.New(), uuid.New()
	tx := &Transaction{From: &from, To: &to}
	assert.True(t, tx.Involves(from))
	assert.True(t, tx.Involves(to))
	assert.False(t, tx.Involves(other))
	assert.False(t, (&Transaction{}).Involves(from))
}

func TestBuildIdempotencyKey(t *testing.T) {
	id := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	key := BuildIdempotencyKey(id, "ORD-001")
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000:ORD-001", key)
}

func TestChangeSet_Validate(t *testing.T) {
	w := &Wallet{ID: uuid.New(), Balance: 100, Status: WalletStatusActive, Version: 3}
	other := &Wallet{ID: uuid.New(), Balance: 0, Status: WalletStatusActive}
	txn := &Transaction{Amount: 30}

	tests := []struct {
		name    string
		cs      ChangeSet
		wantErr bool
	}{
		{"valid transfer", ChangeSet{Wallets: []WalletUpdate{Debit(w, 30), Credit(other, 30)}, Transaction: txn}, false},
		{"empty", ChangeSet{}, true},
		{"negative balance", ChangeSet{Wallets: []WalletUpdate{Debit(w, 101)}, Transaction: txn}, true},
		{"same wallet twice", ChangeSet{Wallets: []WalletUpdate{Debit(w, 1), Credit(w, 1)}, Transaction: txn}, true},
		{"zero amount", ChangeSet{Wallets: []WalletUpdate{Credit(w, 0)}, Transaction: &Transaction{}}, true},
		{"bad status", ChangeSet{Wallets: []WalletUpdate{{WalletID: w.ID, Status: "FROZEN"}}}, true},
		{"idempotency without txn", ChangeSet{Wallets: []WalletUpdate{Credit(w, 1)}, Idempotency: &IdempotencyRecord{}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cs.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreditDebit_KeepVersionAndStatus(t *testing.T) {
	w := &Wallet{ID: uuid.New(), Balance: 100, Status: WalletStatusBlocked, Version: 7}
	c := Credit(w, 5)
	d := Debit(w, 5)
	assert.Equal(t, int64(105), c.NewBalance)
	assert.Equal(t, int64(95), d.NewBalance)
	assert.Equal(t, int64(7), c.Version)
	assert.Equal(t, WalletStatusBlocked, d.Status)
}

func TestEnumeratedValues_AreDurable(t *testing.T) {
	assert.Equal(t, TransactionType("CASH_IN"), TransactionTypeCashIn)
	assert.Equal(t, TransactionType("CASH_OUT"), TransactionTypeCashOut)
	assert.Equal(t, TransactionType("SEND"), TransactionTypeSend)
	assert.Equal(t, TransactionType("CASH_IN_BONUS"), TransactionTypeCashInBonus)
	assert.Equal(t, TransactionType("ADD"), TransactionTypeAdd)
	assert.Equal(t, TransactionStatus("PENDING"), TransactionStatusPending)
	assert.Equal(t, TransactionStatus("COMPLETED"), TransactionStatusCompleted)
	assert.Equal(t, TransactionStatus("FAILED"), TransactionStatusFailed)
	assert.Equal(t, WalletStatus("ACTIVE"), WalletStatusActive)
	assert.Equal(t, WalletStatus("BLOCKED"), WalletStatusBlocked)
}
