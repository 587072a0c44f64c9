// Package repository persists contests, submissions and participant aggregates.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"edujudge/internal/common/cache"
	"edujudge/internal/common/db"
	"edujudge/internal/contest/model"
)

const (
	defaultContestTTL      = 5 * time.Minute
	defaultContestEmptyTTL = time.Minute
	contestKeyPrefix       = "contest:info:"
)

var ErrContestNotFound = errors.New("contest not found")

type ContestRepository interface {
	GetContest(ctx context.Context, contestID int64) (model.Contest, error)
}

// ContestWriter is the authoring side of contests.
type ContestWriter interface {
	CreateContest(ctx context.Context, contest *model.Contest) error
	UpdateSchedule(ctx context.Context, contestID int64, startAt time.Time, durationMinutes int) error
	CountProblems(ctx context.Context, contestID int64) (int, error)
}

type SQLContestRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewContestRepository creates a contest repository. cacheClient may be nil.
func NewContestRepository(database db.Database, cacheClient cache.Cache) *SQLContestRepository {
	return &SQLContestRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      defaultContestTTL,
		emptyTTL: defaultContestEmptyTTL,
	}
}

// GetContest loads a contest. The phase is always derived by the caller, so
// caching the row cannot make a gate decision stale.
func (r *SQLContestRepository) GetContest(ctx context.Context, contestID int64) (model.Contest, error) {
	if r.cache == nil {
		return r.getContestFromDB(ctx, contestID)
	}
	contest, err := cache.GetWithCached[model.Contest](
		ctx,
		r.cache,
		contestKeyPrefix+strconv.FormatInt(contestID, 10),
		cache.JitterTTL(r.ttl),
		cache.JitterTTL(r.emptyTTL),
		func(c model.Contest) bool { return c.ID == 0 },
		marshalJSON[model.Contest],
		unmarshalJSON[model.Contest],
		func(ctx context.Context) (model.Contest, error) {
			c, err := r.getContestFromDB(ctx, contestID)
			if errors.Is(err, ErrContestNotFound) {
				return model.Contest{}, nil
			}
			return c, err
		},
	)
	if err != nil {
		return model.Contest{}, err
	}
	if contest.ID == 0 {
		return model.Contest{}, ErrContestNotFound
	}
	return contest, nil
}

// CreateContest inserts contest and sets its ID.
func (r *SQLContestRepository) CreateContest(ctx context.Context, contest *model.Contest) error {
	if contest == nil {
		return errors.New("contest is nil")
	}
	query := `
		INSERT INTO contest (title, description, start_date, duration_minutes, created_by, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	id, err := insertReturningID(ctx, r.db, r.db.Dialect(), query,
		contest.Title, contest.Description, contest.StartAt, contest.DurationMinutes,
		contest.CreatedBy, contest.IsActive, contest.CreatedAt)
	if err != nil {
		return err
	}
	contest.ID = id
	// The id may have been looked up before it existed.
	r.invalidate(ctx, id)
	return nil
}

// UpdateSchedule moves the start and length of a contest.
func (r *SQLContestRepository) UpdateSchedule(ctx context.Context, contestID int64, startAt time.Time, durationMinutes int) error {
	query := "UPDATE contest SET start_date = ?, duration_minutes = ? WHERE id = ?"
	if _, err := r.db.Exec(ctx, query, startAt, durationMinutes, contestID); err != nil {
		return err
	}
	r.invalidate(ctx, contestID)
	return nil
}

func (r *SQLContestRepository) CountProblems(ctx context.Context, contestID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM contest_problem WHERE contest_id = ?", contestID).Scan(&n)
	return n, err
}

func (r *SQLContestRepository) invalidate(ctx context.Context, contestID int64) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Del(ctx, contestKeyPrefix+strconv.FormatInt(contestID, 10))
}

func (r *SQLContestRepository) getContestFromDB(ctx context.Context, contestID int64) (model.Contest, error) {
	query := `
		SELECT id, title, description, start_date, duration_minutes, created_by, is_active, created_at
		FROM contest
		WHERE id = ?`

	var (
		c           model.Contest
		description sql.NullString
	)
	err := r.db.QueryRow(ctx, query, contestID).Scan(
		&c.ID,
		&c.Title,
		&description,
		&c.StartAt,
		&c.DurationMinutes,
		&c.CreatedBy,
		&c.IsActive,
		&c.CreatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return model.Contest{}, ErrContestNotFound
		}
		return model.Contest{}, err
	}
	c.Description = description.String
	return c, nil
}

// insertReturningID runs an INSERT and returns the generated id. Postgres has
// no LastInsertId, so the statement gets a RETURNING clause there.
func insertReturningID(ctx context.Context, q db.Querier, dialect db.Dialect, query string, args ...interface{}) (int64, error) {
	if dialect == db.DialectPostgres {
		var id int64
		err := q.QueryRow(ctx, query+" RETURNING id", args...).Scan(&id)
		return id, err
	}
	res, err := q.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func marshalJSON[T any](v T) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func unmarshalJSON[T any](data string) (T, error) {
	var v T
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return v, err
	}
	return v, nil
}
