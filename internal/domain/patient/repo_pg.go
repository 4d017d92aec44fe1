package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oculoflow/oculoflow/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const patientCols = `id, patient_ref, name, nic, birth_date, gender, contact_number,
	email, address, status, categories, version_id, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	if p.Status == "" {
		p.Status = StatusPreMonitoring
	}
	if p.Categories == nil {
		p.Categories = []string{}
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient (
			id, patient_ref, name, nic, birth_date, gender, contact_number,
			email, address, status, categories
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		p.ID, p.PatientRef, p.Name, p.NIC, p.BirthDate, p.Gender, p.ContactNumber,
		p.Email, p.Address, p.Status, p.Categories,
	)
	if err != nil {
		return err
	}
	p.VersionID = 1
	return nil
}

func (r *repoPG) GetByRef(ctx context.Context, ref string) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE patient_ref = $1`, ref))
}

// Update writes the row only when version_id still matches the version the
// caller read. A concurrent writer bumping the version first surfaces here as
// ErrVersionConflict.
func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET
			name=$2, nic=$3, birth_date=$4, gender=$5, contact_number=$6,
			email=$7, address=$8, status=$9, categories=$10,
			version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1 AND version_id = $11`,
		p.ID, p.Name, p.NIC, p.BirthDate, p.Gender, p.ContactNumber,
		p.Email, p.Address, p.Status, p.Categories, p.VersionID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	p.VersionID++
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, params SearchParams, limit, offset int) ([]*Patient, int, error) {
	where := []string{"TRUE"}
	args := []interface{}{}
	n := 0

	if params.Query != "" {
		n++
		where = append(where, fmt.Sprintf("(patient_ref ILIKE $%d OR name ILIKE $%d OR nic ILIKE $%d)", n, n, n))
		args = append(args, "%"+params.Query+"%")
	}
	if params.Status != "" {
		n++
		where = append(where, fmt.Sprintf("status = $%d", n))
		args = append(args, params.Status)
	}
	if params.Category != "" {
		n++
		where = append(where, fmt.Sprintf("$%d = ANY(categories)", n))
		args = append(args, params.Category)
	}

	clause := strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT %s FROM patient WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		patientCols, clause, n+1, n+2), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// NextRef allocates the next human-readable patient identifier ("P1", "P2",
// ...) from a dedicated sequence.
func (r *repoPG) NextRef(ctx context.Context) (string, error) {
	var n int64
	if err := r.conn(ctx).QueryRow(ctx, `SELECT nextval('patient_ref_seq')`).Scan(&n); err != nil {
		return "", err
	}
	return fmt.Sprintf("P%d", n), nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.PatientRef, &p.Name, &p.NIC, &p.BirthDate, &p.Gender, &p.ContactNumber,
		&p.Email, &p.Address, &p.Status, &p.Categories, &p.VersionID, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// -- Medical history --

const historyCols = `id, patient_id, condition_name, medications, notes, diagnosed_at, created_at, updated_at`

func (r *repoPG) AddHistory(ctx context.Context, h *MedicalHistoryEntry) error {
	h.ID = uuid.New()
	if h.Medications == nil {
		h.Medications = []string{}
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medical_history (id, patient_id, condition_name, medications, notes, diagnosed_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		h.ID, h.PatientID, h.Condition, h.Medications, h.Notes, h.DiagnosedAt,
	)
	return err
}

func (r *repoPG) GetHistory(ctx context.Context, patientID uuid.UUID) ([]*MedicalHistoryEntry, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+historyCols+` FROM medical_history WHERE patient_id = $1 ORDER BY created_at`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*MedicalHistoryEntry
	for rows.Next() {
		var h MedicalHistoryEntry
		if err := rows.Scan(&h.ID, &h.PatientID, &h.Condition, &h.Medications, &h.Notes,
			&h.DiagnosedAt, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

func (r *repoPG) UpdateHistory(ctx context.Context, h *MedicalHistoryEntry) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medical_history SET
			condition_name=$2, medications=$3, notes=$4, diagnosed_at=$5, updated_at=NOW()
		WHERE id = $1`,
		h.ID, h.Condition, h.Medications, h.Notes, h.DiagnosedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) DeleteHistory(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM medical_history WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
