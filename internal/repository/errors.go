// Package repository holds the MySQL data access for users, tokens, meal
// slots, bookings and wallets, and SQLLedger, the transactional
// settlement.Ledger built on top of them.
//
// Missing rows surface as settlement.ErrNotFound so handlers can treat
// every layer's "not found" the same way.
package repository

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/cafeteria-prebooking/internal/settlement"
)

// ErrEmailExists is returned by UserRepo.Create for a duplicate email.
var ErrEmailExists = errors.New("email already exists")

// ErrTokenInvalid is returned for refresh tokens that are unknown,
// revoked or expired.
var ErrTokenInvalid = errors.New("invalid refresh token")

const errDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == errDuplicateEntry
	}
	return strings.Contains(err.Error(), "1062")
}

// notFound translates sql.ErrNoRows into settlement.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return settlement.ErrNotFound
	}
	return err
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
