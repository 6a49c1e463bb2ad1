package coordinator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const queryTimeout = 5 * time.Second

// PostgreSQL error codes mapped to store errors.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// PostgresStore implements Store with PostgreSQL persistence.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore connects to PostgreSQL and migrates the schema.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS provider_configs (
		id BIGSERIAL PRIMARY KEY,
		prime TEXT NOT NULL,
		r TEXT NOT NULL,
		rinv TEXT NOT NULL,
		no_ssl_validation BOOLEAN NOT NULL DEFAULT FALSE,
		providers JSONB NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS collaborations (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		mpc_program BYTEA NOT NULL,
		csv_specification TEXT NOT NULL,
		participation_number INTEGER NOT NULL,
		config_id BIGINT NOT NULL REFERENCES provider_configs(id),
		output_parties TEXT[],
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS participations (
		collaboration_id BIGINT NOT NULL REFERENCES collaborations(id) ON DELETE CASCADE,
		party_id BIGINT NOT NULL,
		secret_ids TEXT[],
		seq BIGSERIAL,
		PRIMARY KEY (collaboration_id, party_id)
	);

	CREATE TABLE IF NOT EXISTS computation_results (
		collaboration_id BIGINT PRIMARY KEY REFERENCES collaborations(id) ON DELETE CASCADE,
		finished BOOLEAN NOT NULL DEFAULT FALSE,
		result_ids TEXT[],
		error TEXT,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_participations_order ON participations(collaboration_id, seq);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateProviderConfig(ctx context.Context, cfg *ProviderConfig) (*ProviderConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	providers, err := json.Marshal(cfg.Providers)
	if err != nil {
		return nil, fmt.Errorf("encoding providers: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO provider_configs (prime, r, rinv, no_ssl_validation, providers)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, cfg.Prime, cfg.R, cfg.RInv, cfg.NoSSLValidation, providers).Scan(&id)
	if err != nil {
		return nil, mapError(err)
	}

	out := cloneConfig(cfg)
	out.ID = id
	return out, nil
}

func (s *PostgresStore) GetProviderConfig(ctx context.Context, id int64) (*ProviderConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	cfg := &ProviderConfig{ID: id}
	var providers []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT prime, r, rinv, no_ssl_validation, providers
		FROM provider_configs WHERE id = $1
	`, id).Scan(&cfg.Prime, &cfg.R, &cfg.RInv, &cfg.NoSSLValidation, &providers)
	if err != nil {
		return nil, mapError(err)
	}
	if err := json.Unmarshal(providers, &cfg.Providers); err != nil {
		return nil, fmt.Errorf("decoding providers of config %d: %w", id, err)
	}
	return cfg, nil
}

func (s *PostgresStore) CreateCollaboration(ctx context.Context, c *Collaboration) (*Collaboration, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO collaborations (name, mpc_program, csv_specification, participation_number, config_id, output_parties)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, c.Name, c.Program, c.InputSchema, c.ParticipantCount, c.ConfigID, pq.Array(c.OutputParties)).Scan(&id)
	if err != nil {
		return nil, mapError(err)
	}

	out := cloneCollaboration(c)
	out.ID = id
	return out, nil
}

const collaborationColumns = `id, name, mpc_program, csv_specification, participation_number, config_id, output_parties`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCollaboration(row rowScanner) (*Collaboration, error) {
	var (
		c             Collaboration
		outputParties pq.StringArray
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Program, &c.InputSchema, &c.ParticipantCount, &c.ConfigID, &outputParties); err != nil {
		return nil, err
	}
	c.OutputParties = outputParties
	return &c, nil
}

func (s *PostgresStore) GetCollaboration(ctx context.Context, id int64) (*Collaboration, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `SELECT `+collaborationColumns+` FROM collaborations WHERE id = $1`, id)
	c, err := scanCollaboration(row)
	if err != nil {
		return nil, mapError(err)
	}
	return c, nil
}

func (s *PostgresStore) ListCollaborations(ctx context.Context) ([]*Collaboration, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT `+collaborationColumns+` FROM collaborations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Collaboration
	for rows.Next() {
		c, err := scanCollaboration(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteCollaboration(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, "DELETE FROM collaborations WHERE id = $1", id)
	if err != nil {
		return mapError(err)
	}
	return expectAffected(res, ErrRecordNotFound)
}

func (s *PostgresStore) AppendOutputParty(ctx context.Context, id int64, endpoint string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE collaborations SET output_parties = array_append(output_parties, $2)
		WHERE id = $1
	`, id, endpoint)
	if err != nil {
		return mapError(err)
	}
	return expectAffected(res, ErrRecordNotFound)
}

func (s *PostgresStore) CreateParticipation(ctx context.Context, collabID, partyID int64) (*Participation, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO participations (collaboration_id, party_id) VALUES ($1, $2)
	`, collabID, partyID)
	if err != nil {
		return nil, mapError(err)
	}
	return &Participation{CollaborationID: collabID, PartyID: partyID}, nil
}

func scanParticipation(row rowScanner) (*Participation, error) {
	var (
		p        Participation
		shareIDs pq.StringArray
	)
	if err := row.Scan(&p.CollaborationID, &p.PartyID, &shareIDs); err != nil {
		return nil, err
	}
	if shareIDs != nil {
		p.ShareIDs = []string(shareIDs)
	}
	return &p, nil
}

func (s *PostgresStore) GetParticipation(ctx context.Context, collabID, partyID int64) (*Participation, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT collaboration_id, party_id, secret_ids FROM participations
		WHERE collaboration_id = $1 AND party_id = $2
	`, collabID, partyID)
	p, err := scanParticipation(row)
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

func (s *PostgresStore) ListParticipations(ctx context.Context, collabID int64) ([]*Participation, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT collaboration_id, party_id, secret_ids FROM participations
		WHERE collaboration_id = $1 ORDER BY seq
	`, collabID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*Participation{}
	for rows.Next() {
		p, err := scanParticipation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteParticipation(ctx context.Context, collabID, partyID int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM participations
		WHERE collaboration_id = $1 AND party_id = $2 AND secret_ids IS NULL
	`, collabID, partyID)
	if err != nil {
		return mapError(err)
	}
	if err := expectAffected(res, ErrRecordConflict); err != nil {
		return s.conflictOrMissing(ctx, collabID, partyID, err)
	}
	return nil
}

func (s *PostgresStore) ConfirmUpload(ctx context.Context, collabID, partyID int64, shareIDs []string) (*Participation, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		UPDATE participations SET secret_ids = $3
		WHERE collaboration_id = $1 AND party_id = $2 AND secret_ids IS NULL
		RETURNING collaboration_id, party_id, secret_ids
	`, collabID, partyID, pq.Array(shareIDs))
	p, err := scanParticipation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.conflictOrMissing(ctx, collabID, partyID, ErrRecordConflict)
	}
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

// conflictOrMissing tells a failed conditional write on an existing row apart
// from a missing row.
func (s *PostgresStore) conflictOrMissing(ctx context.Context, collabID, partyID int64, conflict error) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM participations WHERE collaboration_id = $1 AND party_id = $2)
	`, collabID, partyID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrRecordNotFound
	}
	return conflict
}

func (s *PostgresStore) CreateResult(ctx context.Context, collabID int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO computation_results (collaboration_id, finished) VALUES ($1, FALSE)
	`, collabID)
	return mapError(err)
}

func (s *PostgresStore) FinishResult(ctx context.Context, collabID int64, resultIDs []string, errMsg *string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var ids any
	if resultIDs != nil {
		ids = pq.Array(resultIDs)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE computation_results SET finished = TRUE, result_ids = $2, error = $3, updated_at = NOW()
		WHERE collaboration_id = $1 AND finished = FALSE
	`, collabID, ids, errMsg)
	if err != nil {
		return mapError(err)
	}
	if err := expectAffected(res, ErrRecordConflict); err != nil {
		if _, getErr := s.GetResult(ctx, collabID); getErr != nil {
			return getErr
		}
		return err
	}
	return nil
}

func (s *PostgresStore) GetResult(ctx context.Context, collabID int64) (*ComputationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		r         = ComputationResult{CollaborationID: collabID}
		resultIDs pq.StringArray
		errMsg    sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT finished, result_ids, error FROM computation_results WHERE collaboration_id = $1
	`, collabID).Scan(&r.Finished, &resultIDs, &errMsg)
	if err != nil {
		return nil, mapError(err)
	}
	if resultIDs != nil {
		r.ResultIDs = []string(resultIDs)
	}
	if errMsg.Valid {
		r.Error = &errMsg.String
	}
	return &r, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func expectAffected(res sql.Result, none error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return none
	}
	return nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRecordNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%w: %s", ErrRecordExists, pqErr.Message)
		case pqForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrRecordNotFound, pqErr.Message)
		}
	}
	return err
}
