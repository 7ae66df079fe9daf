package wallet

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TxnType string

const (
	TypeCredit TxnType = "credit"
	TypeDebit  TxnType = "debit"
)

// Wallet holds one owner's balance. Balance only changes together with an
// appended Transaction.
type Wallet struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	OwnerUserID int64     `json:"ownerUserId" gorm:"not null;uniqueIndex"`
	Balance     int64     `json:"balance" gorm:"not null"`
	Currency    string    `json:"currency" gorm:"type:varchar(3);not null"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (Wallet) TableName() string {
	return "wallets"
}

func (w *Wallet) BeforeCreate(_ *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

// Transaction is an append-only ledger line. Ref is unique per wallet, so a
// retried post with the same ref cannot double count.
type Transaction struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	WalletID  uuid.UUID `json:"walletId" gorm:"type:uuid;not null;uniqueIndex:idx_wallet_txn_ref,priority:1"`
	Type      TxnType   `json:"type" gorm:"type:varchar(8);not null;check:type IN ('credit','debit')"`
	Amount    int64     `json:"amount" gorm:"not null;check:amount > 0"`
	Ref       string    `json:"ref" gorm:"type:varchar(128);not null;uniqueIndex:idx_wallet_txn_ref,priority:2"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime;index"`
}

func (Transaction) TableName() string {
	return "wallet_transactions"
}

func (t *Transaction) BeforeCreate(_ *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// Signed is the transaction's effect on the balance.
func (t Transaction) Signed() int64 {
	if t.Type == TypeDebit {
		return -t.Amount
	}
	return t.Amount
}
