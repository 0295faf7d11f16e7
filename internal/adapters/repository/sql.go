package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/okian/rampart/internal/domain/model"
	"github.com/okian/rampart/pkg/logger"
	"github.com/okian/rampart/pkg/metrics"
)

// SQLStore is a Store on database/sql. Queries are written with ? placeholders
// and rebound for the configured dialect.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	log     logger.Logger
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore wraps db and creates the schema if it does not exist.
func NewSQLStore(ctx context.Context, db *sql.DB, opts ...Option) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: DialectSQLite, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.dialect != DialectSQLite && s.dialect != DialectPostgres {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, s.dialect)
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s schema: %w", s.dialect, err)
		}
	}
	s.log.Debug(ctx, "schema ready", logger.String("dialect", string(s.dialect)))
	return nil
}

func (s *SQLStore) q(query string) string { return s.dialect.Rebind(query) }

func observeQuery(start time.Time) {
	metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
}

func observeUpdate(start time.Time) {
	metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Microseconds()) / 1000)
}

// AddTeam inserts a team and returns it with its id.
func (s *SQLStore) AddTeam(ctx context.Context, team model.Team) (model.Team, error) {
	if team.Name == "" {
		return model.Team{}, fmt.Errorf("%w: team name is empty", ErrInvalidRecord)
	}
	defer observeUpdate(time.Now())
	err := s.db.QueryRowContext(ctx,
		s.q(`INSERT INTO teams (name, color) VALUES (?, ?) RETURNING id`),
		team.Name, string(team.Color),
	).Scan(&team.ID)
	if err != nil {
		return model.Team{}, fmt.Errorf("insert team: %w", err)
	}
	return team, nil
}

// AddService inserts a service for an existing team.
func (s *SQLStore) AddService(ctx context.Context, svc model.Service) (model.Service, error) {
	if svc.Name == "" || svc.Points < 0 {
		return model.Service{}, fmt.Errorf("%w: service needs a name and non-negative points", ErrInvalidRecord)
	}
	if _, err := s.Team(ctx, svc.TeamID); err != nil {
		return model.Service{}, err
	}
	if err := s.unique(ctx, `SELECT COUNT(*) FROM services WHERE team_id = ? AND name = ?`, svc.TeamID, svc.Name); err != nil {
		return model.Service{}, fmt.Errorf("team %d service %q: %w", svc.TeamID, svc.Name, err)
	}
	defer observeUpdate(time.Now())
	err := s.db.QueryRowContext(ctx,
		s.q(`INSERT INTO services (team_id, name, check_name, points) VALUES (?, ?, ?, ?) RETURNING id`),
		svc.TeamID, svc.Name, svc.CheckName, svc.Points,
	).Scan(&svc.ID)
	if err != nil {
		return model.Service{}, fmt.Errorf("insert service: %w", err)
	}
	return svc, nil
}

// AddRound inserts a round.
func (s *SQLStore) AddRound(ctx context.Context, round model.Round) (model.Round, error) {
	if round.Number < 1 {
		return model.Round{}, fmt.Errorf("%w: round number %d", ErrInvalidRecord, round.Number)
	}
	if err := s.unique(ctx, `SELECT COUNT(*) FROM rounds WHERE number = ?`, round.Number); err != nil {
		return model.Round{}, fmt.Errorf("round %d: %w", round.Number, err)
	}
	defer observeUpdate(time.Now())
	err := s.db.QueryRowContext(ctx,
		s.q(`INSERT INTO rounds (number, round_start, round_end) VALUES (?, ?, ?) RETURNING id`),
		round.Number, unixMilli(round.Start), unixMilli(round.End),
	).Scan(&round.ID)
	if err != nil {
		return model.Round{}, fmt.Errorf("insert round %d: %w", round.Number, err)
	}
	return round, nil
}

// RecordCheck inserts a check. The (service, round) pair is unique.
func (s *SQLStore) RecordCheck(ctx context.Context, check model.Check) (model.Check, error) {
	defer observeUpdate(time.Now())
	var known int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM services WHERE id = ?`), check.ServiceID).Scan(&known)
	if err != nil {
		return model.Check{}, fmt.Errorf("load service %d: %w", check.ServiceID, err)
	}
	if known == 0 {
		return model.Check{}, fmt.Errorf("service %d: %w", check.ServiceID, ErrNotFound)
	}
	err = s.db.QueryRowContext(ctx,
		s.q(`SELECT number FROM rounds WHERE id = ?`), check.RoundID,
	).Scan(&check.RoundNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Check{}, fmt.Errorf("round %d: %w", check.RoundID, ErrNotFound)
	}
	if err != nil {
		return model.Check{}, fmt.Errorf("load round %d: %w", check.RoundID, err)
	}

	err = s.db.QueryRowContext(ctx,
		s.q(`INSERT INTO checks (service_id, round_id, round_number, result, completed)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (service_id, round_id) DO NOTHING
RETURNING id`),
		check.ServiceID, check.RoundID, check.RoundNumber, check.Result, check.Completed,
	).Scan(&check.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Check{}, fmt.Errorf("service %d round %d: %w", check.ServiceID, check.RoundNumber, ErrDuplicateCheck)
	}
	if err != nil {
		return model.Check{}, fmt.Errorf("insert check: %w", err)
	}
	return check, nil
}

// unique returns ErrInvalidRecord when the counting query finds a row.
func (s *SQLStore) unique(ctx context.Context, query string, args ...any) error {
	var n int
	if err := s.db.QueryRowContext(ctx, s.q(query), args...).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: already exists", ErrInvalidRecord)
	}
	return nil
}

// Team loads one team.
func (s *SQLStore) Team(ctx context.Context, id int64) (model.Team, error) {
	defer observeQuery(time.Now())
	var (
		t     model.Team
		color string
	)
	err := s.db.QueryRowContext(ctx, s.q(`SELECT id, name, color FROM teams WHERE id = ?`), id).
		Scan(&t.ID, &t.Name, &color)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Team{}, fmt.Errorf("team %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Team{}, fmt.Errorf("load team %d: %w", id, err)
	}
	t.Color = model.TeamColor(color)
	return t, nil
}

// Teams returns every team ordered by id.
func (s *SQLStore) Teams(ctx context.Context) ([]model.Team, error) {
	return s.teams(ctx, `SELECT id, name, color FROM teams ORDER BY id`)
}

// BlueTeams returns the defending teams ordered by id.
func (s *SQLStore) BlueTeams(ctx context.Context) ([]model.Team, error) {
	return s.teams(ctx, `SELECT id, name, color FROM teams WHERE LOWER(color) = ? ORDER BY id`, "blue")
}

func (s *SQLStore) teams(ctx context.Context, query string, args ...any) ([]model.Team, error) {
	defer observeQuery(time.Now())
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query teams: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Team
	for rows.Next() {
		var (
			t     model.Team
			color string
		)
		if err := rows.Scan(&t.ID, &t.Name, &color); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		t.Color = model.TeamColor(color)
		out = append(out, t)
	}
	return out, rows.Err()
}

// TeamServices returns a team's services ordered by id.
func (s *SQLStore) TeamServices(ctx context.Context, teamID int64) ([]model.Service, error) {
	defer observeQuery(time.Now())
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT id, team_id, name, check_name, points FROM services WHERE team_id = ? ORDER BY id`), teamID)
	if err != nil {
		return nil, fmt.Errorf("query services of team %d: %w", teamID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Service
	for rows.Next() {
		var svc model.Service
		if err := rows.Scan(&svc.ID, &svc.TeamID, &svc.Name, &svc.CheckName, &svc.Points); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

// LastRoundNumber returns the highest round number, or 0 when there are no rounds.
func (s *SQLStore) LastRoundNumber(ctx context.Context) (int, error) {
	defer observeQuery(time.Now())
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(number), 0) FROM rounds`).Scan(&n); err != nil {
		return 0, fmt.Errorf("latest round: %w", err)
	}
	return n, nil
}

// CompletedHistory returns the service's completed checks in round order.
func (s *SQLStore) CompletedHistory(ctx context.Context, serviceID int64) ([]model.CheckResult, error) {
	defer observeQuery(time.Now())
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT round_number, result FROM checks WHERE service_id = ? AND completed = ? ORDER BY round_number`),
		serviceID, true)
	if err != nil {
		return nil, fmt.Errorf("query history of service %d: %w", serviceID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.CheckResult
	for rows.Next() {
		var c model.CheckResult
		if err := rows.Scan(&c.Round, &c.Result); err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ChecksInRange loads every check of the team's services for rounds first..last
// in a single query.
func (s *SQLStore) ChecksInRange(ctx context.Context, teamID int64, first, last int) ([]model.Check, error) {
	defer observeQuery(time.Now())
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT c.id, c.service_id, c.round_id, c.round_number, c.result, c.completed
FROM checks c JOIN services s ON s.id = c.service_id
WHERE s.team_id = ? AND c.round_number BETWEEN ? AND ?
ORDER BY c.round_number, c.service_id`), teamID, first, last)
	if err != nil {
		return nil, fmt.Errorf("query checks of team %d: %w", teamID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Check
	for rows.Next() {
		var c model.Check
		if err := rows.Scan(&c.ID, &c.ServiceID, &c.RoundID, &c.RoundNumber, &c.Result, &c.Completed); err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ScoreAt returns the materialized total of a team at a round.
func (s *SQLStore) ScoreAt(ctx context.Context, teamID int64, round int) (int, bool, error) {
	defer observeQuery(time.Now())
	var score int
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT score FROM scores WHERE team_id = ? AND round_number = ?`), teamID, round).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load score of team %d round %d: %w", teamID, round, err)
	}
	return score, true, nil
}

// SaveScores upserts the totals in one transaction.
func (s *SQLStore) SaveScores(ctx context.Context, teamID int64, totals []model.RoundTotal) (err error) {
	if len(totals) == 0 {
		return nil
	}
	defer observeUpdate(time.Now())
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, s.q(`INSERT INTO scores (team_id, round_number, score) VALUES (?, ?, ?)
ON CONFLICT (team_id, round_number) DO UPDATE SET score = excluded.score`))
	if err != nil {
		return fmt.Errorf("prepare score upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, t := range totals {
		if _, err = stmt.ExecContext(ctx, teamID, t.Round, t.Score); err != nil {
			return fmt.Errorf("upsert score of team %d round %d: %w", teamID, t.Round, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit scores: %w", err)
	}
	return nil
}

// TeamScores returns the team's materialized totals in round order.
func (s *SQLStore) TeamScores(ctx context.Context, teamID int64) ([]model.RoundTotal, error) {
	defer observeQuery(time.Now())
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT round_number, score FROM scores WHERE team_id = ? ORDER BY round_number`), teamID)
	if err != nil {
		return nil, fmt.Errorf("query scores of team %d: %w", teamID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.RoundTotal
	for rows.Next() {
		var t model.RoundTotal
		if err := rows.Scan(&t.Round, &t.Score); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Counts reports the number of stored records.
func (s *SQLStore) Counts(ctx context.Context) (Counts, error) {
	defer observeQuery(time.Now())
	var c Counts
	err := s.db.QueryRowContext(ctx, `SELECT
	(SELECT COUNT(*) FROM teams),
	(SELECT COUNT(*) FROM services),
	(SELECT COUNT(*) FROM rounds),
	(SELECT COUNT(*) FROM checks)`).Scan(&c.Teams, &c.Services, &c.Rounds, &c.Checks)
	if err != nil {
		return Counts{}, fmt.Errorf("count records: %w", err)
	}
	return c, nil
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
