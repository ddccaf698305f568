package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spendsense/spendsense/internal/domain"
	"github.com/spendsense/spendsense/internal/store"
)

// UpsertSignals replaces each signal row by its (user, window, type) key.
// DELETE plus INSERT inside one transaction so a reader never sees a key
// with zero or two rows.
func (s *Store) UpsertSignals(ctx context.Context, records []domain.Signal) error {
	if len(records) == 0 {
		return nil
	}
	return s.execTx(ctx, func(tx *sql.Tx) error {
		del, err := tx.PrepareContext(ctx, `
			DELETE FROM computed_features WHERE user_id = ? AND time_window = ? AND signal_type = ?
		`)
		if err != nil {
			return fmt.Errorf("UpsertSignals: preparing delete: %w", err)
		}
		defer del.Close()
		ins, err := tx.PrepareContext(ctx, `
			INSERT INTO computed_features (user_id, time_window, signal_type, signal_data, computed_at)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("UpsertSignals: preparing insert: %w", err)
		}
		defer ins.Close()

		for _, rec := range records {
			if _, err := del.ExecContext(ctx, rec.UserID, string(rec.TimeWindow), string(rec.SignalType)); err != nil {
				return fmt.Errorf("UpsertSignals: deleting %s/%s/%s: %w", rec.UserID, rec.TimeWindow, rec.SignalType, err)
			}
			if _, err := ins.ExecContext(ctx, rec.UserID, string(rec.TimeWindow), string(rec.SignalType), string(rec.Data), formatTime(rec.ComputedAt)); err != nil {
				return fmt.Errorf("UpsertSignals: inserting %s/%s/%s: %w", rec.UserID, rec.TimeWindow, rec.SignalType, err)
			}
		}
		return nil
	})
}

// ListSignals returns signal rows in canonical key order.
func (s *Store) ListSignals(ctx context.Context, f store.Filter) ([]domain.Signal, error) {
	query := `
		SELECT user_id, time_window, signal_type, signal_data, computed_at
		FROM computed_features WHERE 1=1`
	var args []any
	if f.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if f.Window != "" {
		query += " AND time_window = ?"
		args = append(args, string(f.Window))
	}
	if !f.Start.IsZero() {
		query += " AND computed_at >= ?"
		args = append(args, formatTime(f.Start))
	}
	if !f.End.IsZero() {
		query += " AND computed_at <= ?"
		args = append(args, formatTime(f.End))
	}
	if f.Search != "" {
		query += " AND signal_type LIKE ?"
		args = append(args, "%"+f.Search+"%")
	}
	query += " ORDER BY user_id, time_window, signal_type"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListSignals: querying: %w", err)
	}
	defer rows.Close()

	var records []domain.Signal
	for rows.Next() {
		var rec domain.Signal
		var window, signalType, data, computedAt string
		if err := rows.Scan(&rec.UserID, &window, &signalType, &data, &computedAt); err != nil {
			return nil, fmt.Errorf("ListSignals: scanning: %w", err)
		}
		rec.TimeWindow = domain.TimeWindow(window)
		rec.SignalType = domain.SignalType(signalType)
		rec.Data = json.RawMessage(data)
		rec.ComputedAt = parseTime(computedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UpsertAssignments replaces each persona assignment by (user, window),
// DELETE plus INSERT inside one transaction.
func (s *Store) UpsertAssignments(ctx context.Context, assignments []domain.PersonaAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	return s.execTx(ctx, func(tx *sql.Tx) error {
		del, err := tx.PrepareContext(ctx, `
			DELETE FROM persona_assignments WHERE user_id = ? AND time_window = ?
		`)
		if err != nil {
			return fmt.Errorf("UpsertAssignments: preparing delete: %w", err)
		}
		defer del.Close()
		ins, err := tx.PrepareContext(ctx, `
			INSERT INTO persona_assignments
				(user_id, time_window, persona, criteria_met,
				 match_high_utilization, match_variable_income, match_subscription_heavy,
				 match_savings_builder, match_general_wellness, assigned_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("UpsertAssignments: preparing insert: %w", err)
		}
		defer ins.Close()

		for _, a := range assignments {
			criteria, err := json.Marshal(a.CriteriaMet)
			if err != nil {
				return fmt.Errorf("UpsertAssignments: marshaling criteria for %s: %w", a.UserID, err)
			}
			if _, err := del.ExecContext(ctx, a.UserID, string(a.TimeWindow)); err != nil {
				return fmt.Errorf("UpsertAssignments: deleting %s/%s: %w", a.UserID, a.TimeWindow, err)
			}
			_, err = ins.ExecContext(ctx,
				a.UserID, string(a.TimeWindow), string(a.Persona), string(criteria),
				a.Matches.HighUtilization, a.Matches.VariableIncome, a.Matches.SubscriptionHeavy,
				a.Matches.SavingsBuilder, a.Matches.GeneralWellness, formatTime(a.AssignedAt),
			)
			if err != nil {
				return fmt.Errorf("UpsertAssignments: inserting %s/%s: %w", a.UserID, a.TimeWindow, err)
			}
		}
		return nil
	})
}

// GetAssignment returns the assignment for one (user, window) or
// store.ErrNotFound.
func (s *Store) GetAssignment(ctx context.Context, userID string, window domain.TimeWindow) (*domain.PersonaAssignment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, time_window, persona, criteria_met,
		       match_high_utilization, match_variable_income, match_subscription_heavy,
		       match_savings_builder, match_general_wellness, assigned_at
		FROM persona_assignments WHERE user_id = ? AND time_window = ?
	`, userID, string(window))

	a, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("GetAssignment: %s/%s: %w", userID, window, err)
	}
	return a, nil
}

// ListAssignments returns persona assignments matching the filter.
func (s *Store) ListAssignments(ctx context.Context, f store.Filter) ([]domain.PersonaAssignment, error) {
	query := `
		SELECT user_id, time_window, persona, criteria_met,
		       match_high_utilization, match_variable_income, match_subscription_heavy,
		       match_savings_builder, match_general_wellness, assigned_at
		FROM persona_assignments WHERE 1=1`
	var args []any
	if f.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if f.Window != "" {
		query += " AND time_window = ?"
		args = append(args, string(f.Window))
	}
	if !f.Start.IsZero() {
		query += " AND assigned_at >= ?"
		args = append(args, formatTime(f.Start))
	}
	if !f.End.IsZero() {
		query += " AND assigned_at <= ?"
		args = append(args, formatTime(f.End))
	}
	if f.Search != "" {
		query += " AND persona LIKE ?"
		args = append(args, "%"+f.Search+"%")
	}
	query += " ORDER BY user_id, time_window"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListAssignments: querying: %w", err)
	}
	defer rows.Close()

	var assignments []domain.PersonaAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("ListAssignments: scanning: %w", err)
		}
		assignments = append(assignments, *a)
	}
	return assignments, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner) (*domain.PersonaAssignment, error) {
	var a domain.PersonaAssignment
	var window, persona, criteria, assignedAt string
	err := row.Scan(&a.UserID, &window, &persona, &criteria,
		&a.Matches.HighUtilization, &a.Matches.VariableIncome, &a.Matches.SubscriptionHeavy,
		&a.Matches.SavingsBuilder, &a.Matches.GeneralWellness, &assignedAt)
	if err != nil {
		return nil, err
	}
	a.TimeWindow = domain.TimeWindow(window)
	a.Persona = domain.Persona(persona)
	a.CriteriaMet = []string{}
	if criteria != "" {
		if err := json.Unmarshal([]byte(criteria), &a.CriteriaMet); err != nil {
			return nil, fmt.Errorf("decoding criteria_met: %w", err)
		}
	}
	a.AssignedAt = parseTime(assignedAt)
	return &a, nil
}
