package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"edujudge/internal/common/cache"
	"edujudge/internal/common/db"
	"edujudge/internal/contest/model"
)

const (
	defaultProblemTTL      = 10 * time.Minute
	defaultProblemEmptyTTL = time.Minute
	problemKeyPrefix       = "contest:problem:"
	testCasesKeyPrefix     = "contest:cases:"
)

var ErrProblemNotFound = errors.New("problem not found")

type ProblemRepository interface {
	GetProblem(ctx context.Context, contestID, problemID int64) (model.Problem, error)
	ListTestCases(ctx context.Context, problemID int64) ([]model.TestCase, error)
	InvalidateProblem(ctx context.Context, problemID int64) error
}

// ProblemWriter is the authoring side of problems and their test cases.
// Writers leave cache invalidation to the caller.
type ProblemWriter interface {
	CreateProblem(ctx context.Context, problem *model.Problem) error
	UpdateProblem(ctx context.Context, problem model.Problem) error
	CreateTestCase(ctx context.Context, tc *model.TestCase) error
}

type SQLProblemRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewProblemRepository creates a problem repository. cacheClient may be nil.
func NewProblemRepository(database db.Database, cacheClient cache.Cache) *SQLProblemRepository {
	return NewProblemRepositoryWithTTL(database, cacheClient, defaultProblemTTL, defaultProblemEmptyTTL)
}

func NewProblemRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *SQLProblemRepository {
	if ttl <= 0 {
		ttl = defaultProblemTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultProblemEmptyTTL
	}
	return &SQLProblemRepository{db: database, cache: cacheClient, ttl: ttl, emptyTTL: emptyTTL}
}

// GetProblem loads a problem and checks that it belongs to contestID.
func (r *SQLProblemRepository) GetProblem(ctx context.Context, contestID, problemID int64) (model.Problem, error) {
	var (
		problem model.Problem
		err     error
	)
	if r.cache == nil {
		problem, err = r.getProblemFromDB(ctx, problemID)
	} else {
		problem, err = cache.GetWithCached[model.Problem](
			ctx,
			r.cache,
			problemKey(problemID),
			cache.JitterTTL(r.ttl),
			cache.JitterTTL(r.emptyTTL),
			func(p model.Problem) bool { return p.ID == 0 },
			marshalJSON[model.Problem],
			unmarshalJSON[model.Problem],
			func(ctx context.Context) (model.Problem, error) {
				p, err := r.getProblemFromDB(ctx, problemID)
				if errors.Is(err, ErrProblemNotFound) {
					return model.Problem{}, nil
				}
				return p, err
			},
		)
		if err == nil && problem.ID == 0 {
			err = ErrProblemNotFound
		}
	}
	if err != nil {
		return model.Problem{}, err
	}
	if problem.ContestID != contestID {
		return model.Problem{}, ErrProblemNotFound
	}
	return problem, nil
}

// ListTestCases returns every case of a problem in creation order.
func (r *SQLProblemRepository) ListTestCases(ctx context.Context, problemID int64) ([]model.TestCase, error) {
	if r.cache == nil {
		return r.listTestCasesFromDB(ctx, problemID)
	}
	return cache.GetWithCached[[]model.TestCase](
		ctx,
		r.cache,
		testCasesKeyPrefix+strconv.FormatInt(problemID, 10),
		cache.JitterTTL(r.ttl),
		cache.JitterTTL(r.emptyTTL),
		func(cases []model.TestCase) bool { return len(cases) == 0 },
		marshalJSON[[]model.TestCase],
		unmarshalJSON[[]model.TestCase],
		func(ctx context.Context) ([]model.TestCase, error) {
			return r.listTestCasesFromDB(ctx, problemID)
		},
	)
}

// InvalidateProblem drops cached problem data after an edit.
func (r *SQLProblemRepository) InvalidateProblem(ctx context.Context, problemID int64) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Del(ctx, problemKey(problemID), testCasesKeyPrefix+strconv.FormatInt(problemID, 10))
}

func (r *SQLProblemRepository) CreateProblem(ctx context.Context, problem *model.Problem) error {
	if problem == nil {
		return errors.New("problem is nil")
	}
	query := `
		INSERT INTO contest_problem
			(contest_id, title, description, constraints_text, examples, points, time_limit, memory_limit, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	id, err := insertReturningID(ctx, r.db, r.db.Dialect(), query,
		problem.ContestID, problem.Title, problem.Description, problem.Constraints, problem.Examples,
		problem.Points, problem.TimeLimitSeconds, problem.MemoryLimitMB, problem.CreatedAt)
	if err != nil {
		return err
	}
	problem.ID = id
	return nil
}

func (r *SQLProblemRepository) UpdateProblem(ctx context.Context, problem model.Problem) error {
	query := `
		UPDATE contest_problem
		SET title = ?, description = ?, constraints_text = ?, examples = ?, points = ?, time_limit = ?, memory_limit = ?
		WHERE id = ? AND contest_id = ?`
	res, err := r.db.Exec(ctx, query,
		problem.Title, problem.Description, problem.Constraints, problem.Examples,
		problem.Points, problem.TimeLimitSeconds, problem.MemoryLimitMB,
		problem.ID, problem.ContestID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrProblemNotFound
	}
	return nil
}

func (r *SQLProblemRepository) CreateTestCase(ctx context.Context, tc *model.TestCase) error {
	if tc == nil {
		return errors.New("test case is nil")
	}
	query := `
		INSERT INTO contest_test_case (problem_id, input_data, expected_output, is_sample, created_at)
		VALUES (?, ?, ?, ?, ?)`
	id, err := insertReturningID(ctx, r.db, r.db.Dialect(), query,
		tc.ProblemID, tc.Input, tc.ExpectedOutput, tc.IsSample, tc.CreatedAt)
	if err != nil {
		return err
	}
	tc.ID = id
	return nil
}

func (r *SQLProblemRepository) getProblemFromDB(ctx context.Context, problemID int64) (model.Problem, error) {
	query := `
		SELECT id, contest_id, title, description, constraints_text, examples, points, time_limit, memory_limit, created_at
		FROM contest_problem
		WHERE id = ?`

	var (
		p           model.Problem
		constraints sql.NullString
		examples    sql.NullString
	)
	err := r.db.QueryRow(ctx, query, problemID).Scan(
		&p.ID,
		&p.ContestID,
		&p.Title,
		&p.Description,
		&constraints,
		&examples,
		&p.Points,
		&p.TimeLimitSeconds,
		&p.MemoryLimitMB,
		&p.CreatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return model.Problem{}, ErrProblemNotFound
		}
		return model.Problem{}, err
	}
	p.Constraints = constraints.String
	p.Examples = examples.String
	return p, nil
}

func (r *SQLProblemRepository) listTestCasesFromDB(ctx context.Context, problemID int64) ([]model.TestCase, error) {
	query := `
		SELECT id, problem_id, input_data, expected_output, is_sample, created_at
		FROM contest_test_case
		WHERE problem_id = ?
		ORDER BY id`

	rows, err := r.db.Query(ctx, query, problemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []model.TestCase
	for rows.Next() {
		var tc model.TestCase
		if err := rows.Scan(&tc.ID, &tc.ProblemID, &tc.Input, &tc.ExpectedOutput, &tc.IsSample, &tc.CreatedAt); err != nil {
			return nil, err
		}
		cases = append(cases, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cases, nil
}

func problemKey(problemID int64) string {
	return problemKeyPrefix + strconv.FormatInt(problemID, 10)
}
