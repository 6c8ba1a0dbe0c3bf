package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cafeteria-prebooking/internal/model"
	"github.com/iliyamo/cafeteria-prebooking/internal/settlement"
)

const (
	defaultTxLimit = 20
	maxTxLimit     = 100
)

// TransactionLister pages through a user's wallet transactions.
type TransactionLister interface {
	ListTransactions(ctx context.Context, userID uint64, limit, offset int) ([]model.WalletTransaction, int, error)
}

// PaymentHandler serves contributions, settlement and the personal wallet.
type PaymentHandler struct {
	Engine  *settlement.Engine
	Wallets WalletReader
	History TransactionLister
}

type contributeReq struct {
	BookingID uint64      `json:"booking_id" validate:"required"`
	Amount    model.Money `json:"amount"`
}

type transactionResp struct {
	TransactionID uint64                `json:"transaction_id"`
	Amount        model.Money           `json:"amount"`
	Type          model.TransactionType `json:"transaction_type"`
	BookingID     *uint64               `json:"booking_id,omitempty"`
	Description   string                `json:"description"`
	CreatedAt     time.Time             `json:"created_at"`
}

type transactionsResp struct {
	Transactions []transactionResp `json:"transactions"`
	TotalCount   int               `json:"total_count"`
	Limit        int               `json:"limit"`
	Offset       int               `json:"offset"`
}

// Contribute handles POST /api/payments/wallet/contribute.  The amount is
// in rupees; it is moved from the caller's personal wallet into the
// booking wallet.
func (h *PaymentHandler) Contribute(c echo.Context) error {
	uid, found := currentUser(c)
	if !found {
		return unauthorized(c)
	}
	var req contributeReq
	if valid, err := bindValid(c, &req); !valid {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Engine.Contribute(ctx, settlement.ContributeRequest{
		BookingID: req.BookingID,
		UserID:    uid,
		Amount:    req.Amount,
	})
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, http.StatusOK, "contribution recorded", res)
}

// Settle handles POST /api/payments/settle/:bookingId.
func (h *PaymentHandler) Settle(c echo.Context) error {
	uid, found := currentUser(c)
	if !found {
		return unauthorized(c)
	}
	id, valid := idParam(c, "bookingId")
	if !valid {
		return fail(c, http.StatusBadRequest, "bad_request", "invalid booking id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	b, err := h.Engine.Settle(ctx, settlement.SettleRequest{BookingID: id, UserID: uid})
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, http.StatusOK, "booking confirmed", toBookingResp(b))
}

// Balance handles GET /api/payments/personal-wallet/balance.
func (h *PaymentHandler) Balance(c echo.Context) error {
	uid, found := currentUser(c)
	if !found {
		return unauthorized(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	w, err := h.Wallets.Wallet(ctx, uid)
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, http.StatusOK, "wallet balance", echo.Map{"wallet_balance": w.Balance})
}

// Transactions handles GET /api/payments/personal-wallet/transactions.
func (h *PaymentHandler) Transactions(c echo.Context) error {
	uid, found := currentUser(c)
	if !found {
		return unauthorized(c)
	}
	limit, lok := queryInt(c, "limit", defaultTxLimit)
	offset, ook := queryInt(c, "offset", 0)
	if !lok || !ook || limit < 1 || offset < 0 {
		return fail(c, http.StatusBadRequest, "validation_failed", "limit must be positive and offset non-negative")
	}
	if limit > maxTxLimit {
		limit = maxTxLimit
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	txs, total, err := h.History.ListTransactions(ctx, uid, limit, offset)
	if err != nil {
		return failErr(c, err)
	}
	out := transactionsResp{Transactions: make([]transactionResp, 0, len(txs)), TotalCount: total, Limit: limit, Offset: offset}
	for _, t := range txs {
		out.Transactions = append(out.Transactions, transactionResp{
			TransactionID: t.ID,
			Amount:        t.Amount,
			Type:          t.Type,
			BookingID:     t.BookingID,
			Description:   t.Description,
			CreatedAt:     t.CreatedAt,
		})
	}
	return ok(c, http.StatusOK, "wallet transactions", out)
}
