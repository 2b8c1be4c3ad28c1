package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/gokatarajesh/trivia-pipeline/internal/db/queries"
	"github.com/gokatarajesh/trivia-pipeline/internal/metrics"
	"github.com/gokatarajesh/trivia-pipeline/internal/question"
)

const defaultStoreTimeout = 3 * time.Second

type questionStore interface {
	InsertQuestion(ctx context.Context, arg queries.InsertQuestionParams) (queries.Question, error)
	ListCategories(ctx context.Context) ([]string, error)
	SampleQuestionsByCategory(ctx context.Context, arg queries.SampleQuestionsByCategoryParams) ([]queries.Question, error)
}

// QuestionRepository is the persistence gateway: the only component that reads or writes stored questions.
// Every call is bounded by the configured timeout and failures wrap question.ErrPersistence.
type QuestionRepository struct {
	store   questionStore
	timeout time.Duration
	metrics *metrics.Metrics
}

func NewQuestionRepository(store questionStore, timeout time.Duration, m *metrics.Metrics) *QuestionRepository {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &QuestionRepository{store: store, timeout: timeout, metrics: m}
}

var (
	_ question.SampleSource = (*QuestionRepository)(nil)
)

// Create inserts q. A non-empty idempotencyKey makes repeated calls return the first stored row.
func (r *QuestionRepository) Create(ctx context.Context, q question.Question, idempotencyKey string) (stored question.StoredQuestion, err error) {
	defer r.observe("create", time.Now(), &err)

	answers, err := json.Marshal(q.Answers)
	if err != nil {
		return question.StoredQuestion{}, fmt.Errorf("%w: encode answers: %v", question.ErrPersistence, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row, err := r.store.InsertQuestion(ctx, queries.InsertQuestionParams{
		Question:       q.Text,
		Category:       q.Category,
		Answers:        answers,
		IdempotencyKey: pgtype.Text{String: idempotencyKey, Valid: idempotencyKey != ""},
	})
	if err != nil {
		return question.StoredQuestion{}, fmt.Errorf("%w: insert question: %w", question.ErrPersistence, err)
	}
	return toStored(row)
}

// DistinctCategories lists every category with at least one stored question.
func (r *QuestionRepository) DistinctCategories(ctx context.Context) (categories []string, err error) {
	defer r.observe("distinct_categories", time.Now(), &err)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	categories, err = r.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list categories: %w", question.ErrPersistence, err)
	}
	if categories == nil {
		categories = []string{}
	}
	return categories, nil
}

// Sample draws up to count questions of category at random. Fewer matches are returned as-is.
func (r *QuestionRepository) Sample(ctx context.Context, category string, count int) (out []question.Question, err error) {
	defer r.observe("sample", time.Now(), &err)

	if count <= 0 {
		return []question.Question{}, nil
	}
	if count > math.MaxInt32 {
		count = math.MaxInt32
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.store.SampleQuestionsByCategory(ctx, queries.SampleQuestionsByCategoryParams{
		Category: category,
		Limit:    int32(count),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: sample %q: %w", question.ErrPersistence, category, err)
	}

	out = make([]question.Question, 0, len(rows))
	for _, row := range rows {
		stored, err := toStored(row)
		if err != nil {
			return nil, err
		}
		out = append(out, stored.Question)
	}
	return out, nil
}

func (r *QuestionRepository) observe(op string, start time.Time, errp *error) {
	r.metrics.ObserveStore(op, start, *errp)
}

func toStored(row queries.Question) (question.StoredQuestion, error) {
	var answers []question.Answer
	if err := json.Unmarshal(row.Answers, &answers); err != nil {
		return question.StoredQuestion{}, fmt.Errorf("%w: decode answers: %v", question.ErrPersistence, err)
	}

	id := uuid.Nil
	if row.QuestionID.Valid {
		id = uuid.UUID(row.QuestionID.Bytes)
	}

	return question.StoredQuestion{
		ID: id,
		Question: question.Question{
			Text:     row.Question,
			Answers:  answers,
			Category: row.Category,
		},
		CreatedAt: row.CreatedAt.Time,
	}, nil
}
