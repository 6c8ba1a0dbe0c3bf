package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/cafeteria-prebooking/internal/model"
	"github.com/iliyamo/cafeteria-prebooking/internal/settlement"
)

// WalletRepo persists personal wallets and their transaction history.
type WalletRepo struct {
	db *sql.DB
}

// NewWalletRepo returns a WalletRepo bound to db.
func NewWalletRepo(db *sql.DB) *WalletRepo { return &WalletRepo{db: db} }

// CreateTx opens an empty wallet for a new user.
func (r *WalletRepo) CreateTx(ctx context.Context, tx *sql.Tx, userID uint64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO personal_wallets (user_id, balance_paise) VALUES (?, 0)`, userID)
	return err
}

// Get returns the wallet of userID or settlement.ErrNotFound.
func (r *WalletRepo) Get(ctx context.Context, userID uint64) (*model.PersonalWallet, error) {
	var w model.PersonalWallet
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, balance_paise, updated_at FROM personal_wallets WHERE user_id = ?`, userID).
		Scan(&w.UserID, &w.Balance, &w.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &w, nil
}

// GetForUpdateTx reads the wallet and locks its row until tx ends.
func (r *WalletRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, userID uint64) (*model.PersonalWallet, error) {
	var w model.PersonalWallet
	err := tx.QueryRowContext(ctx,
		`SELECT user_id, balance_paise, updated_at FROM personal_wallets WHERE user_id = ? FOR UPDATE`, userID).
		Scan(&w.UserID, &w.Balance, &w.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &w, nil
}

// DebitTx takes amount from the wallet.  The guard in the WHERE clause
// keeps the balance from going negative; when it fails nothing changes
// and settlement.ErrInsufficientFunds is returned.
func (r *WalletRepo) DebitTx(ctx context.Context, tx *sql.Tx, userID uint64, amount model.Money) error {
	if amount <= 0 {
		return settlement.ErrInvalidAmount
	}
	res, err := tx.ExecContext(ctx, `UPDATE personal_wallets
		SET balance_paise = balance_paise - ?
		WHERE user_id = ? AND balance_paise >= ?`, amount, userID, amount)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return settlement.ErrInsufficientFunds
	}
	return nil
}

// RecordTx appends a transaction row and returns its ID.
func (r *WalletRepo) RecordTx(ctx context.Context, tx *sql.Tx, t model.WalletTransaction) (uint64, error) {
	var bookingID sql.NullInt64
	if t.BookingID != nil {
		bookingID = sql.NullInt64{Int64: int64(*t.BookingID), Valid: true}
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO wallet_transactions
		(user_id, amount_paise, transaction_type, booking_id, description) VALUES (?, ?, ?, ?, ?)`,
		t.UserID, t.Amount, t.Type, bookingID, t.Description)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// ListTransactions returns one page of userID's transactions, newest
// first, and the total number of transactions.
func (r *WalletRepo) ListTransactions(ctx context.Context, userID uint64, limit, offset int) ([]model.WalletTransaction, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM wallet_transactions WHERE user_id = ?`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id, user_id, amount_paise, transaction_type, booking_id,
		description, created_at FROM wallet_transactions WHERE user_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []model.WalletTransaction{}
	for rows.Next() {
		var (
			t         model.WalletTransaction
			bookingID sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &bookingID, &t.Description, &t.CreatedAt); err != nil {
			return nil, 0, err
		}
		if bookingID.Valid {
			id := uint64(bookingID.Int64)
			t.BookingID = &id
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}
