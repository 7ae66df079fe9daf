package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"salonbook/internal/domain/notification"
	"salonbook/internal/pkg/apperr"
)

var (
	ErrInvalidAmount       = apperr.New(apperr.Validation, "amount must be positive")
	ErrInvalidType         = apperr.New(apperr.Validation, "type must be credit or debit")
	ErrRefRequired         = apperr.New(apperr.Validation, "ref is required")
	ErrInsufficientBalance = apperr.New(apperr.InsufficientBalance, "insufficient balance")
	ErrDuplicateRef        = apperr.New(apperr.Conflict, "a transaction with this ref already exists")
	ErrNotFound            = apperr.New(apperr.NotFound, "wallet not found")
)

// Notifier receives wallet_credited events after commit.
type Notifier interface {
	Dispatch(ctx context.Context, ev notification.Event)
}

type PostRequest struct {
	OwnerUserID int64
	Type        TxnType
	Amount      int64
	Ref         string
	Note        string
	// AllowOverdraft lets a debit drive the balance below zero.
	AllowOverdraft bool
}

type Service struct {
	db       *gorm.DB
	currency string
	notifier Notifier
}

func NewService(db *gorm.DB, currency string, notifier Notifier) *Service {
	return &Service{db: db, currency: currency, notifier: notifier}
}

// Post appends one transaction and moves the balance in a single database
// transaction, then announces credits.
func (s *Service) Post(ctx context.Context, req PostRequest) (*Wallet, *Transaction, error) {
	var (
		wallet *Wallet
		txn    *Transaction
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		wallet, txn, err = s.PostTx(tx, req)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if txn.Type == TypeCredit {
		s.NotifyCredited(ctx, wallet.OwnerUserID, txn)
	}
	return wallet, txn, nil
}

// PostTx is Post inside the caller's transaction. The caller announces
// credits once its transaction commits.
func (s *Service) PostTx(tx *gorm.DB, req PostRequest) (*Wallet, *Transaction, error) {
	if req.Amount <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	if req.Type != TypeCredit && req.Type != TypeDebit {
		return nil, nil, ErrInvalidType
	}
	if strings.TrimSpace(req.Ref) == "" {
		return nil, nil, ErrRefRequired
	}

	var wallet Wallet
	if err := s.getOrCreateWalletForUpdate(tx, req.OwnerUserID, &wallet); err != nil {
		return nil, nil, err
	}

	var dup int64
	if err := tx.Model(&Transaction{}).Where("wallet_id = ? AND ref = ?", wallet.ID, req.Ref).Count(&dup).Error; err != nil {
		return nil, nil, err
	}
	if dup > 0 {
		return nil, nil, ErrDuplicateRef
	}

	txn := Transaction{WalletID: wallet.ID, Type: req.Type, Amount: req.Amount, Ref: req.Ref, Note: req.Note}
	next := wallet.Balance + txn.Signed()
	if next < 0 && req.Type == TypeDebit && !req.AllowOverdraft {
		return nil, nil, ErrInsufficientBalance
	}

	if err := tx.Create(&txn).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, nil, ErrDuplicateRef
		}
		return nil, nil, err
	}
	wallet.Balance = next
	wallet.UpdatedAt = time.Now().UTC()
	if err := tx.Model(&Wallet{}).Where("id = ?", wallet.ID).
		Updates(map[string]any{"balance": wallet.Balance, "updated_at": wallet.UpdatedAt}).Error; err != nil {
		return nil, nil, err
	}
	return &wallet, &txn, nil
}

// FindRefTx returns the owner's transaction carrying ref, or nil.
func (s *Service) FindRefTx(tx *gorm.DB, ownerUserID int64, ref string) (*Transaction, error) {
	var txn Transaction
	err := tx.Model(&Transaction{}).
		Select("wallet_transactions.*").
		Joins("JOIN wallets ON wallets.id = wallet_transactions.wallet_id").
		Where("wallets.owner_user_id = ? AND wallet_transactions.ref = ?", ownerUserID, ref).
		Take(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// NotifyCredited emits wallet_credited for txn.
func (s *Service) NotifyCredited(ctx context.Context, ownerUserID int64, txn *Transaction) {
	if s.notifier == nil || txn == nil || txn.Type != TypeCredit {
		return
	}
	s.notifier.Dispatch(ctx, notification.Event{
		Type:   notification.TypeWalletCredited,
		UserID: ownerUserID,
		Title:  "Wallet credited",
		Body:   fmt.Sprintf("%d %s credited to your wallet", txn.Amount, s.currency),
		Data: map[string]any{
			"transaction_id": txn.ID.String(),
			"amount":         txn.Amount,
			"ref":            txn.Ref,
		},
	})
}

func (s *Service) GetOrCreateWallet(ctx context.Context, ownerUserID int64) (*Wallet, error) {
	wallet, err := s.getWalletByOwner(ctx, ownerUserID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	wallet = &Wallet{OwnerUserID: ownerUserID, Currency: s.currency}
	if err := s.db.WithContext(ctx).Create(wallet).Error; err != nil {
		if isUniqueConstraintError(err) {
			return s.getWalletByOwner(ctx, ownerUserID)
		}
		return nil, err
	}
	return wallet, nil
}

// Statement is the wallet with its full history, newest first.
type Statement struct {
	Balance      int64         `json:"balance"`
	Currency     string        `json:"currency"`
	Transactions []Transaction `json:"transactions"`
}

func (s *Service) Statement(ctx context.Context, ownerUserID int64) (*Statement, error) {
	wallet, err := s.GetOrCreateWallet(ctx, ownerUserID)
	if err != nil {
		return nil, err
	}
	txns, err := s.listTransactions(ctx, wallet.ID)
	if err != nil {
		return nil, err
	}
	return &Statement{Balance: wallet.Balance, Currency: wallet.Currency, Transactions: txns}, nil
}

// AuditReport compares the stored balance with the replayed ledger.
type AuditReport struct {
	OwnerUserID      int64 `json:"ownerUserId"`
	Balance          int64 `json:"balance"`
	LedgerSum        int64 `json:"ledgerSum"`
	TransactionCount int   `json:"transactionCount"`
	Consistent       bool  `json:"consistent"`
}

func (s *Service) Audit(ctx context.Context, ownerUserID int64) (*AuditReport, error) {
	wallet, err := s.getWalletByOwner(ctx, ownerUserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	txns, err := s.listTransactions(ctx, wallet.ID)
	if err != nil {
		return nil, err
	}
	var sum int64
	for _, t := range txns {
		sum += t.Signed()
	}
	return &AuditReport{
		OwnerUserID:      ownerUserID,
		Balance:          wallet.Balance,
		LedgerSum:        sum,
		TransactionCount: len(txns),
		Consistent:       sum == wallet.Balance,
	}, nil
}

func (s *Service) listTransactions(ctx context.Context, walletID uuid.UUID) ([]Transaction, error) {
	txns := make([]Transaction, 0)
	err := s.db.WithContext(ctx).Where("wallet_id = ?", walletID).Order("created_at desc").Find(&txns).Error
	return txns, err
}

func (s *Service) getWalletByOwner(ctx context.Context, ownerUserID int64) (*Wallet, error) {
	var wallet Wallet
	if err := s.db.WithContext(ctx).Where("owner_user_id = ?", ownerUserID).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (s *Service) getOrCreateWalletForUpdate(tx *gorm.DB, ownerUserID int64, wallet *Wallet) error {
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("owner_user_id = ?", ownerUserID).First(wallet).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		*wallet = Wallet{OwnerUserID: ownerUserID, Currency: s.currency}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(wallet).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("owner_user_id = ?", ownerUserID).First(wallet).Error
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint") || strings.Contains(msg, "unique failed")
}
