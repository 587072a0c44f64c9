package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"edujudge/internal/common/cache"
	"edujudge/internal/contest/clock"
	"edujudge/internal/contest/model"
	"edujudge/internal/contest/repository"
	"edujudge/internal/judge/harness"
	judgeModel "edujudge/internal/judge/model"
	judgeRepo "edujudge/internal/judge/repository"
	"edujudge/internal/judge/sandbox/result"
	"edujudge/internal/judge/sandbox/runner"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var contestStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeSession struct {
	outputs map[string]result.Outcome
}

func (s *fakeSession) Run(_ context.Context, stdin string, _ runner.Limits) result.Outcome {
	if out, ok := s.outputs[stdin]; ok {
		return out
	}
	return ok("")
}

func (s *fakeSession) Close() {}

// fakeRunner answers by stdin, or fails preparation when prepared is set.
type fakeRunner struct {
	outputs  map[string]result.Outcome
	prepared *result.Outcome
}

func (r *fakeRunner) Prepare(context.Context, string, string) (harness.Session, result.Outcome) {
	if r.prepared != nil {
		return nil, *r.prepared
	}
	return &fakeSession{outputs: r.outputs}, result.Outcome{Verdict: result.VerdictSuccess, ExitSucceeded: true}
}

func ok(stdout string) result.Outcome {
	return result.Outcome{ExitSucceeded: true, Stdout: stdout, Verdict: result.VerdictSuccess, Elapsed: 20 * time.Millisecond}
}

type fakeContests struct {
	contests map[int64]model.Contest
}

func (f *fakeContests) GetContest(_ context.Context, id int64) (model.Contest, error) {
	c, found := f.contests[id]
	if !found {
		return model.Contest{}, repository.ErrContestNotFound
	}
	return c, nil
}

type fakeProblems struct {
	problems map[int64]model.Problem
	cases    map[int64][]model.TestCase
}

func (f *fakeProblems) GetProblem(_ context.Context, contestID, problemID int64) (model.Problem, error) {
	p, found := f.problems[problemID]
	if !found || p.ContestID != contestID {
		return model.Problem{}, repository.ErrProblemNotFound
	}
	return p, nil
}

func (f *fakeProblems) ListTestCases(_ context.Context, problemID int64) ([]model.TestCase, error) {
	return f.cases[problemID], nil
}

func (f *fakeProblems) InvalidateProblem(context.Context, int64) error { return nil }

type fakeSubmissions struct {
	mu          sync.Mutex
	subs        map[string]model.Submission
	results     map[string][]model.TestResult
	finalizeErr error
	markedError []string
}

func newFakeSubmissions() *fakeSubmissions {
	return &fakeSubmissions{subs: map[string]model.Submission{}, results: map[string][]model.TestResult{}}
}

func (f *fakeSubmissions) CreatePending(_ context.Context, sub *model.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub.Status = model.SubmissionPending
	f.subs[sub.ID] = *sub
	return nil
}

func (f *fakeSubmissions) Finalize(_ context.Context, sub *model.Submission, results []model.TestResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finalizeErr != nil {
		return f.finalizeErr
	}
	if f.subs[sub.ID].Status != model.SubmissionPending {
		return repository.ErrSubmissionFinalized
	}
	f.subs[sub.ID] = *sub
	f.results[sub.ID] = results
	return nil
}

func (f *fakeSubmissions) MarkError(_ context.Context, id string, judgedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := f.subs[id]
	if sub.Status == model.SubmissionPending {
		sub.Status = model.SubmissionError
		sub.JudgedAt = &judgedAt
		f.subs[id] = sub
	}
	f.markedError = append(f.markedError, id)
	return nil
}

func (f *fakeSubmissions) GetSubmission(_ context.Context, id string) (model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, found := f.subs[id]
	if !found {
		return model.Submission{}, repository.ErrSubmissionNotFound
	}
	return sub, nil
}

func (f *fakeSubmissions) ListTestResults(_ context.Context, id string) ([]model.TestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[id], nil
}

func (f *fakeSubmissions) ParticipantStats(_ context.Context, contestID, userID int64) (repository.ParticipantStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	best := map[int64]int{}
	var stats repository.ParticipantStats
	for _, sub := range f.subs {
		if sub.ContestID != contestID || sub.UserID != userID || sub.Status == model.SubmissionPending {
			continue
		}
		if cur, seen := best[sub.ProblemID]; !seen || sub.Score > cur {
			best[sub.ProblemID] = sub.Score
		}
		if stats.LastSubmission == nil || sub.SubmittedAt.After(*stats.LastSubmission) {
			t := sub.SubmittedAt
			stats.LastSubmission = &t
		}
	}
	for _, score := range best {
		stats.TotalScore += score
		if score > 0 {
			stats.ProblemsSolved++
		}
	}
	return stats, nil
}

type fakeParticipants struct {
	mu      sync.Mutex
	rows    map[[2]int64]model.Participant
	upserts int
}

func newFakeParticipants() *fakeParticipants {
	return &fakeParticipants{rows: map[[2]int64]model.Participant{}}
}

func (f *fakeParticipants) Upsert(_ context.Context, p model.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	f.rows[[2]int64{p.ContestID, p.UserID}] = p
	return nil
}

func (f *fakeParticipants) ListByContest(_ context.Context, contestID int64) ([]model.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Participant
	for key, p := range f.rows {
		if key[0] == contestID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeParticipants) UpdateRanks(context.Context, int64, map[int64]int) error { return nil }

type fakePublisher struct {
	events []judgeModel.VerdictEvent
	err    error
}

func (f *fakePublisher) PublishVerdict(_ context.Context, event judgeModel.VerdictEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

type fakeArchive struct {
	records []judgeRepo.ArchiveRecord
}

func (f *fakeArchive) Store(_ context.Context, record judgeRepo.ArchiveRecord) (string, error) {
	f.records = append(f.records, record)
	return judgeRepo.ArchiveKey(record.ContestTitle, record.Submission), nil
}

type fixture struct {
	svc          *Service
	runner       *fakeRunner
	submissions  *fakeSubmissions
	participants *fakeParticipants
	publisher    *fakePublisher
	archive      *fakeArchive
	status       *judgeRepo.StatusRepository
	cache        cache.Cache
	mr           *miniredis.Miniredis
}

// newFixture builds contest 1 starting at contestStart for 60 minutes, with
// problem 10 worth 100 points: one sample and four hidden cases h1..h4.
func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	contests := &fakeContests{contests: map[int64]model.Contest{
		1: {ID: 1, Title: "Spring Cup", StartAt: contestStart, DurationMinutes: 60, IsActive: true},
		2: {ID: 2, Title: "Archived", StartAt: contestStart, DurationMinutes: 60, IsActive: false},
	}}
	problems := &fakeProblems{
		problems: map[int64]model.Problem{
			10: {ID: 10, ContestID: 1, Title: "Echo", Points: 100, TimeLimitSeconds: 1, MemoryLimitMB: 256},
			11: {ID: 11, ContestID: 1, Title: "Empty", Points: 50},
		},
		cases: map[int64][]model.TestCase{
			10: {
				{ID: 1, ProblemID: 10, Input: "s1", ExpectedOutput: "S1", IsSample: true},
				{ID: 2, ProblemID: 10, Input: "h1", ExpectedOutput: "H1"},
				{ID: 3, ProblemID: 10, Input: "h2", ExpectedOutput: "H2"},
				{ID: 4, ProblemID: 10, Input: "h3", ExpectedOutput: "H3"},
				{ID: 5, ProblemID: 10, Input: "h4", ExpectedOutput: "H4"},
			},
		},
	}

	f := &fixture{
		runner:       &fakeRunner{outputs: map[string]result.Outcome{}},
		submissions:  newFakeSubmissions(),
		participants: newFakeParticipants(),
		publisher:    &fakePublisher{},
		archive:      &fakeArchive{},
		status:       judgeRepo.NewStatusRepository(c, time.Hour),
		cache:        c,
		mr:           mr,
	}
	svc, err := NewService(Config{
		Harness:      harness.NewHarnessWithRunner(f.runner),
		Contests:     contests,
		Problems:     problems,
		Submissions:  f.submissions,
		Participants: f.participants,
		StatusStore:  f.status,
		Publisher:    f.publisher,
		Archive:      f.archive,
		Limiter:      judgeRepo.NewTrialLimiter(c, 3),
		Locker:       c,
		Clock:        clock.Fixed(now),
		LockWait:     200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

func (f *fixture) answer(stdin, stdout string) {
	f.runner.outputs[stdin] = ok(stdout)
}

var errBoom = errors.New("boom")
