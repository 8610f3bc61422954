package agents

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDirectory reads discharge reports from PostgreSQL.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresDirectory(ctx context.Context, databaseURL string) (*PostgresDirectory, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initPatientSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresDirectory{pool: pool}, nil
}

func initPatientSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS discharge_reports (
			name_key TEXT PRIMARY KEY,
			patient_name TEXT NOT NULL,
			discharge_date DATE NOT NULL,
			primary_diagnosis TEXT NOT NULL,
			medications TEXT[] NOT NULL DEFAULT '{}',
			dietary_restrictions TEXT NOT NULL DEFAULT '',
			follow_up TEXT NOT NULL DEFAULT '',
			warning_signs TEXT NOT NULL DEFAULT '',
			discharge_instructions TEXT NOT NULL DEFAULT ''
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// Seed inserts reports that are not present yet.
func (d *PostgresDirectory) Seed(ctx context.Context, patients ...Patient) error {
	batch := &pgx.Batch{}
	for _, p := range patients {
		batch.Queue(
			`INSERT INTO discharge_reports (name_key, patient_name, discharge_date, primary_diagnosis,
				medications, dietary_restrictions, follow_up, warning_signs, discharge_instructions)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (name_key) DO NOTHING`,
			normalizeName(p.Name),
			p.Name,
			p.DischargeDate,
			p.PrimaryDiagnosis,
			p.Medications,
			p.DietaryRestrictions,
			p.FollowUp,
			p.WarningSigns,
			p.DischargeInstructions,
		)
	}
	if err := d.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("seed discharge reports: %w", err)
	}
	return nil
}

func (d *PostgresDirectory) Lookup(ctx context.Context, name string) (Patient, error) {
	var p Patient
	err := d.pool.QueryRow(ctx,
		`SELECT patient_name, discharge_date, primary_diagnosis, medications,
			dietary_restrictions, follow_up, warning_signs, discharge_instructions
		 FROM discharge_reports WHERE name_key=$1`,
		normalizeName(name),
	).Scan(
		&p.Name,
		&p.DischargeDate,
		&p.PrimaryDiagnosis,
		&p.Medications,
		&p.DietaryRestrictions,
		&p.FollowUp,
		&p.WarningSigns,
		&p.DischargeInstructions,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Patient{}, ErrPatientNotFound
	}
	if err != nil {
		return Patient{}, fmt.Errorf("lookup patient: %w", err)
	}
	return p, nil
}

// Ping reports whether the database is reachable.
func (d *PostgresDirectory) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

func (d *PostgresDirectory) Close() error {
	d.pool.Close()
	return nil
}
