package model

import "time"

// PersonalWallet is a user's own balance, the only source of
// contributions to booking wallets.
type PersonalWallet struct {
	UserID    uint64    // personal_wallets.user_id
	Balance   Money     // personal_wallets.balance_paise
	UpdatedAt time.Time // personal_wallets.updated_at
}

// TransactionType classifies a wallet transaction.
type TransactionType string

const (
	TxRecharge     TransactionType = "recharge"
	TxContribution TransactionType = "contribution"
	TxRefund       TransactionType = "refund"
)

// WalletTransaction is one movement on a personal wallet.  Amount is
// signed: contributions are negative, recharges and refunds positive.
type WalletTransaction struct {
	ID          uint64          // wallet_transactions.id
	UserID      uint64          // wallet_transactions.user_id
	Amount      Money           // wallet_transactions.amount_paise
	Type        TransactionType // wallet_transactions.transaction_type
	BookingID   *uint64         // wallet_transactions.booking_id (nullable)
	Description string          // wallet_transactions.description
	CreatedAt   time.Time       // wallet_transactions.created_at
}
