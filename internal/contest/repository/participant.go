package repository

import (
	"context"
	"database/sql"
	"errors"

	"edujudge/internal/common/db"
	"edujudge/internal/contest/model"
)

type ParticipantRepository interface {
	Upsert(ctx context.Context, p model.Participant) error
	ListByContest(ctx context.Context, contestID int64) ([]model.Participant, error)
	UpdateRanks(ctx context.Context, contestID int64, ranks map[int64]int) error
}

var ErrParticipantNotFound = errors.New("participant not found")

// ParticipantRegistry records who joined a contest.
type ParticipantRegistry interface {
	// Create fails with a unique violation when the user already joined.
	Create(ctx context.Context, p *model.Participant) error
	Get(ctx context.Context, contestID, userID int64) (model.Participant, error)
}

type SQLParticipantRepository struct {
	db db.Database
}

func NewParticipantRepository(database db.Database) *SQLParticipantRepository {
	return &SQLParticipantRepository{db: database}
}

// Upsert writes the aggregate for (contest, user). The rank is not touched.
func (r *SQLParticipantRepository) Upsert(ctx context.Context, p model.Participant) error {
	var query string
	switch r.db.Dialect() {
	case db.DialectPostgres:
		query = `
			INSERT INTO contest_participant (contest_id, user_id, total_score, problems_solved, last_submission)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (contest_id, user_id) DO UPDATE SET
				total_score = EXCLUDED.total_score,
				problems_solved = EXCLUDED.problems_solved,
				last_submission = EXCLUDED.last_submission`
	default:
		query = `
			INSERT INTO contest_participant (contest_id, user_id, total_score, problems_solved, last_submission)
			VALUES (?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				total_score = VALUES(total_score),
				problems_solved = VALUES(problems_solved),
				last_submission = VALUES(last_submission)`
	}
	_, err := r.db.Exec(ctx, query, p.ContestID, p.UserID, p.TotalScore, p.ProblemsSolved, p.LastSubmission)
	return err
}

func (r *SQLParticipantRepository) Create(ctx context.Context, p *model.Participant) error {
	if p == nil {
		return errors.New("participant is nil")
	}
	query := "INSERT INTO contest_participant (contest_id, user_id, total_score, problems_solved) VALUES (?, ?, 0, 0)"
	id, err := insertReturningID(ctx, r.db, r.db.Dialect(), query, p.ContestID, p.UserID)
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

func (r *SQLParticipantRepository) Get(ctx context.Context, contestID, userID int64) (model.Participant, error) {
	query := `
		SELECT id, contest_id, user_id, total_score, problems_solved, rank_position, last_submission
		FROM contest_participant
		WHERE contest_id = ? AND user_id = ?`
	var (
		p    model.Participant
		rank sql.NullInt64
		last sql.NullTime
	)
	err := r.db.QueryRow(ctx, query, contestID, userID).Scan(
		&p.ID, &p.ContestID, &p.UserID, &p.TotalScore, &p.ProblemsSolved, &rank, &last)
	if err != nil {
		if db.IsNoRows(err) {
			return model.Participant{}, ErrParticipantNotFound
		}
		return model.Participant{}, err
	}
	if rank.Valid {
		v := int(rank.Int64)
		p.Rank = &v
	}
	if last.Valid {
		t := last.Time
		p.LastSubmission = &t
	}
	return p, nil
}

func (r *SQLParticipantRepository) ListByContest(ctx context.Context, contestID int64) ([]model.Participant, error) {
	query := `
		SELECT id, contest_id, user_id, total_score, problems_solved, rank_position, last_submission
		FROM contest_participant
		WHERE contest_id = ?`

	rows, err := r.db.Query(ctx, query, contestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []model.Participant
	for rows.Next() {
		var (
			p    model.Participant
			rank sql.NullInt64
			last sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.ContestID, &p.UserID, &p.TotalScore, &p.ProblemsSolved, &rank, &last); err != nil {
			return nil, err
		}
		if rank.Valid {
			v := int(rank.Int64)
			p.Rank = &v
		}
		if last.Valid {
			t := last.Time
			p.LastSubmission = &t
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// UpdateRanks stores finalized ranks in one transaction.
func (r *SQLParticipantRepository) UpdateRanks(ctx context.Context, contestID int64, ranks map[int64]int) error {
	if len(ranks) == 0 {
		return nil
	}
	return r.db.Transaction(ctx, func(tx db.Transaction) error {
		query := "UPDATE contest_participant SET rank_position = ? WHERE contest_id = ? AND user_id = ?"
		for userID, rank := range ranks {
			if _, err := tx.Exec(ctx, query, rank, contestID, userID); err != nil {
				return err
			}
		}
		return nil
	})
}

