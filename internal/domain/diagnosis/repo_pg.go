package diagnosis

import (
	"context"
	"errors"

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

const entryCols = `id, patient_id, eye, image_url, label, confidence_scores, status,
	medicine, note, revisit_timeframe, uploaded_at, updated_at`

func (r *repoPG) Create(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Status == "" {
		e.Status = StatusUnchecked
	}
	if e.ConfidenceScores == nil {
		e.ConfidenceScores = []float64{}
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO diagnosis (id, patient_id, eye, image_url, label, confidence_scores, status, medicine, note, revisit_timeframe)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.PatientID, e.Eye, e.ImageURL, e.Label, e.ConfidenceScores, e.Status,
		e.Medicine, e.Note, e.RevisitTimeFrame,
	)
	if err != nil {
		return err
	}
	for i := range e.Tests {
		e.Tests[i].DiagnosisID = e.ID
		if err := r.AddTest(ctx, &e.Tests[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	e, err := scanEntry(r.conn(ctx).QueryRow(ctx, `SELECT `+entryCols+` FROM diagnosis WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if e.Tests, err = r.testsFor(ctx, e.ID); err != nil {
		return nil, err
	}
	if e.Reviews, err = r.reviewsFor(ctx, e.ID); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Entry, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+entryCols+` FROM diagnosis WHERE patient_id = $1 ORDER BY uploaded_at, id`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, e := range out {
		if e.Tests, err = r.testsFor(ctx, e.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *repoPG) Update(ctx context.Context, e *Entry) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE diagnosis SET
			label=$2, status=$3, medicine=$4, note=$5, revisit_timeframe=$6, updated_at=NOW()
		WHERE id = $1`,
		e.ID, e.Label, e.Status, e.Medicine, e.Note, e.RevisitTimeFrame,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM diagnosis WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) AddTest(ctx context.Context, t *TestItem) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = TestPending
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO diagnosis_test (id, diagnosis_id, test_name, status, attachment_url)
		VALUES ($1,$2,$3,$4,$5)`,
		t.ID, t.DiagnosisID, t.TestName, t.Status, t.AttachmentURL,
	)
	return err
}

func (r *repoPG) GetTest(ctx context.Context, id uuid.UUID) (*TestItem, error) {
	var t TestItem
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, diagnosis_id, test_name, status, attachment_url, added_at, updated_at
		FROM diagnosis_test WHERE id = $1`, id).
		Scan(&t.ID, &t.DiagnosisID, &t.TestName, &t.Status, &t.AttachmentURL, &t.AddedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repoPG) UpdateTest(ctx context.Context, t *TestItem) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE diagnosis_test SET status=$2, attachment_url=$3, updated_at=NOW()
		WHERE id = $1`,
		t.ID, t.Status, t.AttachmentURL,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTestNotFound
	}
	return nil
}

func (r *repoPG) AddReview(ctx context.Context, rev *ReviewRecord) error {
	if rev.ID == uuid.Nil {
		rev.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO diagnosis_review (id, diagnosis_id, recommended_medicine, notes)
		VALUES ($1,$2,$3,$4)`,
		rev.ID, rev.DiagnosisID, rev.RecommendedMedicine, rev.Notes,
	)
	return err
}

func (r *repoPG) testsFor(ctx context.Context, diagnosisID uuid.UUID) ([]TestItem, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, diagnosis_id, test_name, status, attachment_url, added_at, updated_at
		FROM diagnosis_test WHERE diagnosis_id = $1 ORDER BY added_at, id`, diagnosisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TestItem
	for rows.Next() {
		var t TestItem
		if err := rows.Scan(&t.ID, &t.DiagnosisID, &t.TestName, &t.Status, &t.AttachmentURL,
			&t.AddedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repoPG) reviewsFor(ctx context.Context, diagnosisID uuid.UUID) ([]ReviewRecord, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, diagnosis_id, recommended_medicine, notes, created_at
		FROM diagnosis_review WHERE diagnosis_id = $1 ORDER BY created_at, id`, diagnosisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReviewRecord
	for rows.Next() {
		var rev ReviewRecord
		if err := rows.Scan(&rev.ID, &rev.DiagnosisID, &rev.RecommendedMedicine, &rev.Notes, &rev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rev)
	}
	return out, rows.Err()
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(
		&e.ID, &e.PatientID, &e.Eye, &e.ImageURL, &e.Label, &e.ConfidenceScores, &e.Status,
		&e.Medicine, &e.Note, &e.RevisitTimeFrame, &e.UploadedAt, &e.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
