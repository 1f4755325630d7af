package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	pq "github.com/lib/pq"

	"otago-pg/internal/config"
	"otago-pg/pkg/types"
)

// Entry is one page outcome as handed to the sinks.
type Entry struct {
	RunID     string
	School    string
	Level     string
	ScrapedAt time.Time
	Outcome   types.ScrapeOutcome
}

// Sink persists outcomes.
type Sink interface {
	Save(ctx context.Context, entry Entry) error
	Close() error
}

// RecordStore persists complete programme records.
type RecordStore interface {
	SaveRecord(ctx context.Context, entry Entry) error
	Close() error
}

// Pipeline fans out outcomes to the configured sinks. Record stores only see
// outcomes that carry a complete record; sinks see every outcome that is not
// skipped.
type Pipeline struct {
	records []RecordStore
	sinks   []Sink
}

// NewPipeline constructs a storage pipeline. It returns nil when nothing is
// configured.
func NewPipeline(records []RecordStore, sinks []Sink) *Pipeline {
	if len(records) == 0 && len(sinks) == 0 {
		return nil
	}
	return &Pipeline{records: records, sinks: sinks}
}

// Persist stores the entry in every configured destination. A failing
// destination does not stop the others.
func (p *Pipeline) Persist(ctx context.Context, entry Entry) error {
	if p == nil || entry.Outcome.Status == types.OutcomeSkipped {
		return nil
	}
	var errs []error
	if entry.Outcome.HasRecord() {
		for _, store := range p.records {
			if err := store.SaveRecord(ctx, entry); err != nil {
				errs = append(errs, fmt.Errorf("record store: %w", err))
			}
		}
	}
	for _, sink := range p.sinks {
		if err := sink.Save(ctx, entry); err != nil {
			errs = append(errs, fmt.Errorf("sink: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every destination.
func (p *Pipeline) Close() error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, store := range p.records {
		errs = append(errs, store.Close())
	}
	for _, sink := range p.sinks {
		errs = append(errs, sink.Close())
	}
	return errors.Join(errs...)
}

// SQLWriter stores records in a PostgreSQL programs table.
type SQLWriter struct {
	db          *sql.DB
	autoMigrate bool
}

// NewSQLWriter initialises a SQLWriter from configuration.
func NewSQLWriter(ctx context.Context, cfg config.SQLConfig) (*SQLWriter, error) {
	if cfg.Driver == "" || cfg.DSN == "" {
		return nil, errors.New("sql config missing driver or dsn")
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sql connection: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		if !cfg.CreateIfMissing || !shouldAttemptCreateDatabase(cfg.Driver, err) {
			return nil, fmt.Errorf("ping sql connection: %w", err)
		}
		if err := createDatabase(pingCtx, cfg); err != nil {
			return nil, err
		}
		db, err = sql.Open(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sql connection: %w", err)
		}
		if err := db.PingContext(pingCtx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping sql connection: %w", err)
		}
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime.Duration > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Duration)
	}
	writer := &SQLWriter{db: db, autoMigrate: cfg.AutoMigrate}
	if cfg.AutoMigrate {
		if err := writer.ensureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return writer, nil
}

// SaveRecord upserts the entry's record keyed by source URL.
func (s *SQLWriter) SaveRecord(ctx context.Context, entry Entry) error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.upsertRecord(ctx, entry); err != nil {
		if s.autoMigrate && isUndefinedTableErr(err) {
			if schemaErr := s.ensureSchema(ctx); schemaErr != nil {
				return fmt.Errorf("ensure schema: %w", schemaErr)
			}
			if retryErr := s.upsertRecord(ctx, entry); retryErr != nil {
				return fmt.Errorf("upsert program: %w", retryErr)
			}
			return nil
		}
		return fmt.Errorf("upsert program: %w", err)
	}
	return nil
}

const upsertProgramSQL = `
        INSERT INTO programs (
            id, source_url, run_id, school, level, scraped_at,
            name, degree, faculty, overview, study_mode, duration, fees,
            language_requirements, course_structure, admission_requirements,
            ielts, toefl, pte, application_start_date, application_deadline, start_date,
            apply_urls, field_errors
        )
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
        ON CONFLICT (source_url) DO UPDATE SET
            run_id = EXCLUDED.run_id,
            scraped_at = EXCLUDED.scraped_at,
            name = EXCLUDED.name,
            degree = EXCLUDED.degree,
            faculty = EXCLUDED.faculty,
            overview = EXCLUDED.overview,
            study_mode = EXCLUDED.study_mode,
            duration = EXCLUDED.duration,
            fees = EXCLUDED.fees,
            language_requirements = EXCLUDED.language_requirements,
            course_structure = EXCLUDED.course_structure,
            admission_requirements = EXCLUDED.admission_requirements,
            ielts = EXCLUDED.ielts,
            toefl = EXCLUDED.toefl,
            pte = EXCLUDED.pte,
            application_start_date = EXCLUDED.application_start_date,
            application_deadline = EXCLUDED.application_deadline,
            start_date = EXCLUDED.start_date,
            apply_urls = EXCLUDED.apply_urls,
            field_errors = EXCLUDED.field_errors
    `

func (s *SQLWriter) upsertRecord(ctx context.Context, entry Entry) error {
	rec := entry.Outcome.Data
	if rec == nil {
		return errors.New("entry has no record")
	}
	applyURLs, err := jsonArray(rec.ApplyURLs)
	if err != nil {
		return err
	}
	fieldErrors, err := jsonArray(entry.Outcome.Errors.ErrList)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, upsertProgramSQL,
		RecordID(rec.SourceURL), rec.SourceURL, entry.RunID, entry.School, entry.Level, entry.ScrapedAt,
		rec.Name, rec.Degree, rec.Faculty, rec.Overview, rec.StudyMode, rec.Duration, rec.Fees,
		rec.LanguageRequirements, rec.CourseStructure, rec.AdmissionRequirements,
		rec.IELTS, rec.TOEFL, rec.PTE, rec.ApplicationStartDate, rec.ApplicationDeadline, rec.StartDate,
		applyURLs, fieldErrors,
	)
	return err
}

func jsonArray(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode json array: %w", err)
	}
	return string(b), nil
}

// Close closes the underlying DB connection.
func (s *SQLWriter) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func shouldAttemptCreateDatabase(driver string, err error) bool {
	if !strings.EqualFold(driver, "postgres") {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "3D000"
	}
	return strings.Contains(strings.ToLower(err.Error()), "does not exist")
}

func createDatabase(ctx context.Context, cfg config.SQLConfig) error {
	parsed, err := url.Parse(cfg.DSN)
	if err != nil {
		return fmt.Errorf("parse dsn: %w", err)
	}
	dbName := strings.TrimPrefix(parsed.Path, "/")
	if dbName == "" {
		return errors.New("dsn missing database name")
	}
	if strings.EqualFold(dbName, "postgres") {
		return fmt.Errorf("target database %q cannot be auto-created", dbName)
	}
	parsed.Path = "/postgres"
	adminDB, err := sql.Open(cfg.Driver, parsed.String())
	if err != nil {
		return fmt.Errorf("connect admin database: %w", err)
	}
	defer adminDB.Close()
	if err := adminDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping admin database: %w", err)
	}
	stmt := fmt.Sprintf("CREATE DATABASE %s", pq.QuoteIdentifier(dbName))
	if _, err := adminDB.ExecContext(ctx, stmt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "42P04" {
			return nil
		}
		return fmt.Errorf("create database %q: %w", dbName, err)
	}
	return nil
}

func (s *SQLWriter) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil || !s.autoMigrate {
		return nil
	}
	schemaCtx := ctx
	if schemaCtx == nil || schemaCtx.Err() != nil {
		schemaCtx = context.Background()
	}
	schemaCtx, cancel := context.WithTimeout(schemaCtx, 10*time.Second)
	defer cancel()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS programs (
		    id UUID PRIMARY KEY,
		    source_url TEXT NOT NULL UNIQUE,
		    run_id TEXT,
		    school TEXT,
		    level TEXT,
		    scraped_at TIMESTAMPTZ,
		    name TEXT,
		    degree TEXT,
		    faculty TEXT,
		    overview TEXT,
		    study_mode TEXT,
		    duration TEXT,
		    fees TEXT,
		    language_requirements TEXT,
		    course_structure TEXT,
		    admission_requirements TEXT,
		    ielts TEXT,
		    toefl TEXT,
		    pte TEXT,
		    application_start_date TEXT,
		    application_deadline TEXT,
		    start_date TEXT,
		    apply_urls JSONB NOT NULL DEFAULT '[]'::jsonb,
		    field_errors JSONB NOT NULL DEFAULT '[]'::jsonb
		)`,
		`CREATE INDEX IF NOT EXISTS idx_programs_scraped_at ON programs (scraped_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(schemaCtx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func isUndefinedTableErr(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P01"
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "relation") && strings.Contains(lower, "does not exist")
}
