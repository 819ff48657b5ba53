package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool *pgxpool.Pool
	db   DBTX
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, db: pool}
}

func (r *PgRepository) WithTx(ctx context.Context, fn func(tx Store) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&PgRepository{pool: r.pool, db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *PgRepository) LockOwner(ctx context.Context, ownerID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, ownerID.String())
	return err
}

// Helpers

const sessionColumns = `
	id, owner_id, patient_id, start_time, duration_minutes, status, is_courtesy,
	clinical_notes, observations,
	recurrence_group_id, recurrence_pattern, recurrence_end_date, recurrence_count, recurrence_index,
	package_id, package_order, created_at, updated_at`

const paymentColumns = `
	id, session_id, amount_cents, status, method, paid_at, notes,
	receipt_url, receipt_filename, receipt_type, receipt_size, created_at, updated_at`

const packageColumns = `
	id, owner_id, patient_id, name, notes, total_sessions, total_price_cents, status, last_order, created_at, updated_at`

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	var (
		groupID   *uuid.UUID
		pattern   *string
		endDate   *time.Time
		count     *int
		index     *int
		packageID *uuid.UUID
		order     *int
	)

	err := row.Scan(
		&s.ID,
		&s.OwnerID,
		&s.PatientID,
		&s.StartTime,
		&s.DurationMinutes,
		&s.Status,
		&s.IsCourtesy,
		&s.ClinicalNotes,
		&s.Observations,
		&groupID,
		&pattern,
		&endDate,
		&count,
		&index,
		&packageID,
		&order,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	switch {
	case groupID != nil && packageID != nil:
		return nil, fmt.Errorf("session %s belongs to both a package and a recurrence group", s.ID)
	case groupID != nil:
		rm := &RecurrenceMembership{GroupID: *groupID, EndDate: endDate}
		if pattern != nil {
			rm.Pattern = RecurrencePattern(*pattern)
		}
		if count != nil {
			rm.Count = *count
		}
		if index != nil {
			rm.Index = *index
		}
		s.Membership = rm
	case packageID != nil:
		pm := &PackageMembership{PackageID: *packageID}
		if order != nil {
			pm.Order = *order
		}
		s.Membership = pm
	}

	return &s, nil
}

func collectSessions(rows pgx.Rows) ([]Session, error) {
	defer rows.Close()

	var result []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	var (
		method      *string
		url         *string
		filename    *string
		contentType *string
		size        *int64
	)

	err := row.Scan(
		&p.ID,
		&p.SessionID,
		&p.AmountCents,
		&p.Status,
		&method,
		&p.PaidAt,
		&p.Notes,
		&url,
		&filename,
		&contentType,
		&size,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}

	if method != nil {
		m := PaymentMethod(*method)
		p.Method = &m
	}
	if url != nil || filename != nil {
		rc := &Receipt{}
		if url != nil {
			rc.URL = *url
		}
		if filename != nil {
			rc.Filename = *filename
		}
		if contentType != nil {
			rc.ContentType = *contentType
		}
		if size != nil {
			rc.Size = *size
		}
		p.Receipt = rc
	}
	return &p, nil
}

func scanPackage(row pgx.Row) (*SessionPackage, error) {
	var p SessionPackage
	err := row.Scan(
		&p.ID,
		&p.OwnerID,
		&p.PatientID,
		&p.Name,
		&p.Notes,
		&p.TotalSessions,
		&p.TotalPriceCents,
		&p.Status,
		&p.LastOrder,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPackageNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Interface methods

func (r *PgRepository) FindOwnedPatient(ctx context.Context, ownerID, patientID uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, owner_id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1 AND owner_id = $2
	`, patientID, ownerID)
	return scanPatient(row)
}

func (r *PgRepository) FindActivePricingPlan(ctx context.Context, patientID uuid.UUID) (*PricingPlan, error) {
	var p PricingPlan
	var planType string
	err := r.db.QueryRow(ctx, `
		SELECT id, patient_id, package_id, type, session_price_cents, package_price_cents,
		       package_sessions, is_active, created_at
		FROM pricing_plans
		WHERE patient_id = $1 AND is_active
		ORDER BY created_at DESC
		LIMIT 1
	`, patientID).Scan(
		&p.ID,
		&p.PatientID,
		&p.PackageID,
		&planType,
		&p.SessionPriceCents,
		&p.PackagePriceCents,
		&p.PackageSessions,
		&p.Active,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPricingPlanNotFound
		}
		return nil, err
	}
	p.Type = PricingType(planType)
	return &p, nil
}

func (r *PgRepository) GetSession(ctx context.Context, ownerID, id uuid.UUID) (*Session, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sessionColumns+`
		FROM sessions
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID)
	return scanSession(row)
}

func (r *PgRepository) ListSessions(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]Session, error) {
	rows, err := r.db.Query(ctx, `SELECT `+sessionColumns+`
		FROM sessions
		WHERE owner_id = $1
		  AND start_time >= $2
		  AND start_time < $3
		ORDER BY start_time ASC, id ASC
	`, ownerID, from, to)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

func (r *PgRepository) ListActiveSessionsInWindow(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]Session, error) {
	rows, err := r.db.Query(ctx, `SELECT `+sessionColumns+`
		FROM sessions
		WHERE owner_id = $1
		  AND status <> 'CANCELLED'
		  AND start_time >= $2
		  AND start_time < $3
		ORDER BY start_time ASC
	`, ownerID, from, to)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

func (r *PgRepository) ListRecurrenceGroup(ctx context.Context, ownerID, groupID uuid.UUID) ([]Session, error) {
	rows, err := r.db.Query(ctx, `SELECT `+sessionColumns+`
		FROM sessions
		WHERE owner_id = $1 AND recurrence_group_id = $2
		ORDER BY recurrence_index ASC
	`, ownerID, groupID)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

func (r *PgRepository) ListPackageSessions(ctx context.Context, packageID uuid.UUID) ([]Session, error) {
	rows, err := r.db.Query(ctx, `SELECT `+sessionColumns+`
		FROM sessions
		WHERE package_id = $1
		ORDER BY package_order ASC
	`, packageID)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

func (r *PgRepository) InsertSession(ctx context.Context, s *Session) error {
	var (
		groupID   *uuid.UUID
		pattern   *string
		endDate   *time.Time
		count     *int
		index     *int
		packageID *uuid.UUID
		order     *int
	)
	switch m := s.Membership.(type) {
	case *RecurrenceMembership:
		p := string(m.Pattern)
		groupID, pattern, endDate, count, index = &m.GroupID, &p, m.EndDate, &m.Count, &m.Index
	case *PackageMembership:
		packageID, order = &m.PackageID, &m.Order
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		s.ID, s.OwnerID, s.PatientID, s.StartTime, s.DurationMinutes, s.Status, s.IsCourtesy,
		s.ClinicalNotes, s.Observations,
		groupID, pattern, endDate, count, index,
		packageID, order, s.CreatedAt, s.UpdatedAt,
	)
	return err
}

func (r *PgRepository) UpdateSessionSchedule(ctx context.Context, id uuid.UUID, start time.Time, durationMinutes int) (*Session, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE sessions
		SET start_time = $2,
		    duration_minutes = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+sessionColumns, id, start, durationMinutes)
	return scanSession(row)
}

func (r *PgRepository) UpdateSessionStatus(ctx context.Context, id uuid.UUID, status SessionStatus) (*Session, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE sessions
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+sessionColumns, id, status)
	return scanSession(row)
}

// DeleteSessions removes payments explicitly before their sessions; the
// foreign key cascade covers rows written outside this repository.
func (r *PgRepository) DeleteSessions(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	keys := idStrings(ids)

	if _, err := r.db.Exec(ctx, `DELETE FROM payments WHERE session_id = ANY($1::uuid[])`, keys); err != nil {
		return 0, fmt.Errorf("delete payments: %w", err)
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = ANY($1::uuid[])`, keys)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PgRepository) GetPayment(ctx context.Context, ownerID, id uuid.UUID) (*Payment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT p.id, p.session_id, p.amount_cents, p.status, p.method, p.paid_at, p.notes,
		       p.receipt_url, p.receipt_filename, p.receipt_type, p.receipt_size, p.created_at, p.updated_at
		FROM payments p
		JOIN sessions s ON s.id = p.session_id
		WHERE p.id = $1 AND s.owner_id = $2
	`, id, ownerID)
	return scanPayment(row)
}

func (r *PgRepository) GetPaymentBySession(ctx context.Context, sessionID uuid.UUID) (*Payment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+paymentColumns+`
		FROM payments
		WHERE session_id = $1
	`, sessionID)
	return scanPayment(row)
}

func (r *PgRepository) ListPaymentsBySessions(ctx context.Context, sessionIDs []uuid.UUID) (map[uuid.UUID]Payment, error) {
	payments := make(map[uuid.UUID]Payment, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return payments, nil
	}

	rows, err := r.db.Query(ctx, `SELECT `+paymentColumns+`
		FROM payments
		WHERE session_id = ANY($1::uuid[])
	`, idStrings(sessionIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments[p.SessionID] = *p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func receiptColumns(rc *Receipt) (url, filename, contentType *string, size *int64) {
	if rc == nil {
		return nil, nil, nil, nil
	}
	return &rc.URL, &rc.Filename, &rc.ContentType, &rc.Size
}

func (r *PgRepository) InsertPayment(ctx context.Context, p *Payment) error {
	url, filename, contentType, size := receiptColumns(p.Receipt)
	_, err := r.db.Exec(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		p.ID, p.SessionID, p.AmountCents, p.Status, p.Method, p.PaidAt, p.Notes,
		url, filename, contentType, size, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (r *PgRepository) UpdatePayment(ctx context.Context, p *Payment) error {
	url, filename, contentType, size := receiptColumns(p.Receipt)
	tag, err := r.db.Exec(ctx, `
		UPDATE payments
		SET amount_cents = $2,
		    status = $3,
		    method = $4,
		    paid_at = $5,
		    notes = $6,
		    receipt_url = $7,
		    receipt_filename = $8,
		    receipt_type = $9,
		    receipt_size = $10,
		    updated_at = $11
		WHERE id = $1
	`, p.ID, p.AmountCents, p.Status, p.Method, p.PaidAt, p.Notes, url, filename, contentType, size, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (r *PgRepository) GetPackage(ctx context.Context, ownerID, id uuid.UUID) (*SessionPackage, error) {
	row := r.db.QueryRow(ctx, `SELECT `+packageColumns+`
		FROM session_packages
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID)
	return scanPackage(row)
}

func (r *PgRepository) InsertPackage(ctx context.Context, p *SessionPackage) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO session_packages (`+packageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, p.ID, p.OwnerID, p.PatientID, p.Name, p.Notes, p.TotalSessions, p.TotalPriceCents, p.Status, p.LastOrder, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *PgRepository) SetPackageLastOrder(ctx context.Context, id uuid.UUID, order int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE session_packages
		SET last_order = GREATEST(last_order, $2),
		    updated_at = now()
		WHERE id = $1
	`, id, order)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPackageNotFound
	}
	return nil
}

func (r *PgRepository) UpdatePackageStatus(ctx context.Context, id uuid.UUID, status PackageStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE session_packages
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPackageNotFound
	}
	return nil
}

func (r *PgRepository) InsertPricingPlan(ctx context.Context, p *PricingPlan) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO pricing_plans (id, patient_id, package_id, type, session_price_cents,
		                           package_price_cents, package_sessions, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.PatientID, p.PackageID, string(p.Type), p.SessionPriceCents, p.PackagePriceCents, p.PackageSessions, p.Active, p.CreatedAt)
	return err
}

func (r *PgRepository) DeletePackage(ctx context.Context, id uuid.UUID) error {
	steps := []struct {
		what string
		sql  string
	}{
		{"payments", `DELETE FROM payments WHERE session_id IN (SELECT id FROM sessions WHERE package_id = $1)`},
		{"sessions", `DELETE FROM sessions WHERE package_id = $1`},
		{"pricing plan", `DELETE FROM pricing_plans WHERE package_id = $1`},
		{"package", `DELETE FROM session_packages WHERE id = $1`},
	}
	for _, st := range steps {
		if _, err := r.db.Exec(ctx, st.sql, id); err != nil {
			return fmt.Errorf("delete package %s: %w", st.what, err)
		}
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev AuditEvent) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, owner_id, entity_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.OwnerID, ev.EntityID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
