package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"edujudge/internal/common/db"
	"edujudge/internal/contest/model"
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrSubmissionFinalized means the pending row was already moved to a terminal status.
	ErrSubmissionFinalized = errors.New("submission already finalized")
)

// ParticipantStats is the aggregate replayed from graded submissions.
type ParticipantStats struct {
	TotalScore     int
	ProblemsSolved int
	LastSubmission *time.Time
}

type SubmissionRepository interface {
	CreatePending(ctx context.Context, sub *model.Submission) error
	// Finalize moves a pending submission to a terminal status and stores its
	// results in one transaction.
	Finalize(ctx context.Context, sub *model.Submission, results []model.TestResult) error
	MarkError(ctx context.Context, submissionID string, judgedAt time.Time) error
	GetSubmission(ctx context.Context, submissionID string) (model.Submission, error)
	ListTestResults(ctx context.Context, submissionID string) ([]model.TestResult, error)
	ParticipantStats(ctx context.Context, contestID, userID int64) (ParticipantStats, error)
}

type SQLSubmissionRepository struct {
	db db.Database
}

func NewSubmissionRepository(database db.Database) *SQLSubmissionRepository {
	return &SQLSubmissionRepository{db: database}
}

func (r *SQLSubmissionRepository) CreatePending(ctx context.Context, sub *model.Submission) error {
	if sub == nil {
		return errors.New("submission is nil")
	}
	sub.Status = model.SubmissionPending
	query := `
		INSERT INTO contest_submission (id, contest_id, problem_id, user_id, code, language, status, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.Exec(ctx, query,
		sub.ID, sub.ContestID, sub.ProblemID, sub.UserID, sub.Code, sub.Language, string(sub.Status), sub.SubmittedAt)
	return err
}

func (r *SQLSubmissionRepository) Finalize(ctx context.Context, sub *model.Submission, results []model.TestResult) error {
	if sub == nil {
		return errors.New("submission is nil")
	}
	if !sub.Status.Terminal() {
		return errors.New("finalize requires a terminal status")
	}
	return r.db.Transaction(ctx, func(tx db.Transaction) error {
		query := `
			UPDATE contest_submission
			SET status = ?, score = ?, execution_time = ?, passed_count = ?, total_count = ?, judged_at = ?
			WHERE id = ? AND status = ?`
		res, err := tx.Exec(ctx, query,
			string(sub.Status), sub.Score, sub.ExecutionSeconds, sub.PassedCount, sub.TotalCount, sub.JudgedAt,
			sub.ID, string(model.SubmissionPending))
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrSubmissionFinalized
		}
		return insertTestResults(ctx, db.GetQuerier(r.db, tx), sub.ID, results)
	})
}

func insertTestResults(ctx context.Context, q db.Querier, submissionID string, results []model.TestResult) error {
	if len(results) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString(`INSERT INTO contest_test_result
		(submission_id, test_case_id, case_index, status, actual_output, error_message, execution_time) VALUES `)
	args := make([]interface{}, 0, len(results)*7)
	for i, res := range results {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?, ?)")
		args = append(args, submissionID, res.TestCaseID, res.CaseIndex, string(res.Status),
			res.ActualOutput, res.ErrorMessage, res.ExecutionSeconds)
	}
	_, err := q.Exec(ctx, b.String(), args...)
	return err
}

// MarkError is the fallback when finalization failed. Terminal rows are left alone.
func (r *SQLSubmissionRepository) MarkError(ctx context.Context, submissionID string, judgedAt time.Time) error {
	query := `
		UPDATE contest_submission
		SET status = ?, score = 0, judged_at = ?
		WHERE id = ? AND status = ?`
	_, err := r.db.Exec(ctx, query, string(model.SubmissionError), judgedAt, submissionID, string(model.SubmissionPending))
	return err
}

func (r *SQLSubmissionRepository) GetSubmission(ctx context.Context, submissionID string) (model.Submission, error) {
	query := `
		SELECT id, contest_id, problem_id, user_id, code, language, status, score, execution_time,
			passed_count, total_count, submitted_at, judged_at
		FROM contest_submission
		WHERE id = ?`

	var (
		sub      model.Submission
		status   string
		judgedAt sql.NullTime
	)
	err := r.db.QueryRow(ctx, query, submissionID).Scan(
		&sub.ID,
		&sub.ContestID,
		&sub.ProblemID,
		&sub.UserID,
		&sub.Code,
		&sub.Language,
		&status,
		&sub.Score,
		&sub.ExecutionSeconds,
		&sub.PassedCount,
		&sub.TotalCount,
		&sub.SubmittedAt,
		&judgedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return model.Submission{}, ErrSubmissionNotFound
		}
		return model.Submission{}, err
	}
	sub.Status = model.SubmissionStatus(status)
	if judgedAt.Valid {
		t := judgedAt.Time
		sub.JudgedAt = &t
	}
	return sub, nil
}

func (r *SQLSubmissionRepository) ListTestResults(ctx context.Context, submissionID string) ([]model.TestResult, error) {
	query := `
		SELECT id, submission_id, test_case_id, case_index, status, actual_output, error_message, execution_time
		FROM contest_test_result
		WHERE submission_id = ?
		ORDER BY case_index`

	rows, err := r.db.Query(ctx, query, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.TestResult
	for rows.Next() {
		var (
			res       model.TestResult
			status    string
			actual    sql.NullString
			errorText sql.NullString
		)
		if err := rows.Scan(&res.ID, &res.SubmissionID, &res.TestCaseID, &res.CaseIndex, &status, &actual, &errorText, &res.ExecutionSeconds); err != nil {
			return nil, err
		}
		res.Status = model.TestResultStatus(status)
		res.ActualOutput = actual.String
		res.ErrorMessage = errorText.String
		results = append(results, res)
	}
	return results, rows.Err()
}

// ParticipantStats replays the aggregate from every graded submission of a user,
// so it can be recomputed any number of times with the same answer.
func (r *SQLSubmissionRepository) ParticipantStats(ctx context.Context, contestID, userID int64) (ParticipantStats, error) {
	query := `
		SELECT COALESCE(SUM(best), 0), COALESCE(SUM(CASE WHEN best > 0 THEN 1 ELSE 0 END), 0), MAX(last_at)
		FROM (
			SELECT problem_id, MAX(score) AS best, MAX(submitted_at) AS last_at
			FROM contest_submission
			WHERE contest_id = ? AND user_id = ? AND status <> ?
			GROUP BY problem_id
		) per_problem`

	var (
		stats ParticipantStats
		last  sql.NullTime
	)
	err := r.db.QueryRow(ctx, query, contestID, userID, string(model.SubmissionPending)).
		Scan(&stats.TotalScore, &stats.ProblemsSolved, &last)
	if err != nil {
		return ParticipantStats{}, err
	}
	if last.Valid {
		t := last.Time
		stats.LastSubmission = &t
	}
	return stats, nil
}
