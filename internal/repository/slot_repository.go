package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/cafeteria-prebooking/internal/model"
	"github.com/iliyamo/cafeteria-prebooking/internal/paywindow"
)

const slotColumns = `slot_id, slot_name, slot_date, start_time, end_time, max_capacity,
	current_occupancy, is_active, payment_window_start, payment_window_end, created_at`

// SlotRepo persists meal slots.
type SlotRepo struct {
	db *sql.DB
}

// NewSlotRepo returns a SlotRepo bound to db.
func NewSlotRepo(db *sql.DB) *SlotRepo { return &SlotRepo{db: db} }

// Create inserts s.  The payment window is always derived from StartTime
// here, so every stored slot carries the window it was created with.  The
// generated ID and window are written back into s.
func (r *SlotRepo) Create(ctx context.Context, s *model.MealSlot) error {
	s.PaymentWindowStart, s.PaymentWindowEnd = paywindow.Compute(s.StartTime)
	const q = `INSERT INTO meal_slots (slot_name, slot_date, start_time, end_time, max_capacity,
		is_active, payment_window_start, payment_window_end) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q,
		s.SlotName, s.SlotDate.Format(time.DateOnly), s.StartTime, s.EndTime, s.MaxCapacity,
		s.IsActive, s.PaymentWindowStart, s.PaymentWindowEnd)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.SlotID = uint64(id)
	return nil
}

// GetByID returns the slot or settlement.ErrNotFound.
func (r *SlotRepo) GetByID(ctx context.Context, id uint64) (*model.MealSlot, error) {
	s, err := scanSlot(r.db.QueryRowContext(ctx,
		`SELECT `+slotColumns+` FROM meal_slots WHERE slot_id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// ListByDateRange returns slots whose date falls in [from, to], ordered by
// date and start time.  With activeOnly, inactive slots are skipped.
func (r *SlotRepo) ListByDateRange(ctx context.Context, from, to time.Time, activeOnly bool) ([]model.MealSlot, error) {
	q := `SELECT ` + slotColumns + ` FROM meal_slots WHERE slot_date BETWEEN ? AND ?`
	if activeOnly {
		q += ` AND is_active = TRUE`
	}
	q += ` ORDER BY slot_date, start_time`
	rows, err := r.db.QueryContext(ctx, q, from.Format(time.DateOnly), to.Format(time.DateOnly))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.MealSlot{}
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func scanSlot(row rowScanner) (*model.MealSlot, error) {
	var s model.MealSlot
	err := row.Scan(&s.SlotID, &s.SlotName, &s.SlotDate, &s.StartTime, &s.EndTime, &s.MaxCapacity,
		&s.CurrentOccupancy, &s.IsActive, &s.PaymentWindowStart, &s.PaymentWindowEnd, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
