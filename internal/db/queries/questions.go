package queries

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Queries runs the statements against the questions table.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Question mirrors a row of the questions table.
type Question struct {
	QuestionID     pgtype.UUID
	Question       string
	Category       string
	Answers        []byte
	IdempotencyKey pgtype.Text
	CreatedAt      pgtype.Timestamptz
}

const insertQuestion = `
WITH inserted AS (
	INSERT INTO questions (question, category, answers, idempotency_key)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (idempotency_key) DO NOTHING
	RETURNING question_id, question, category, answers, idempotency_key, created_at
)
SELECT question_id, question, category, answers, idempotency_key, created_at FROM inserted
UNION ALL
SELECT question_id, question, category, answers, idempotency_key, created_at
FROM questions
WHERE idempotency_key = $4 AND NOT EXISTS (SELECT 1 FROM inserted)
LIMIT 1
`

type InsertQuestionParams struct {
	Question       string
	Category       string
	Answers        []byte
	IdempotencyKey pgtype.Text
}

// InsertQuestion stores a row. When the idempotency key already exists the
// existing row is returned instead of a duplicate.
func (q *Queries) InsertQuestion(ctx context.Context, arg InsertQuestionParams) (Question, error) {
	row := q.db.QueryRow(ctx, insertQuestion,
		arg.Question,
		arg.Category,
		arg.Answers,
		arg.IdempotencyKey,
	)
	var i Question
	err := row.Scan(
		&i.QuestionID,
		&i.Question,
		&i.Category,
		&i.Answers,
		&i.IdempotencyKey,
		&i.CreatedAt,
	)
	return i, err
}

const listCategories = `
SELECT DISTINCT category
FROM questions
ORDER BY category
`

func (q *Queries) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := q.db.Query(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []string
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, err
		}
		items = append(items, category)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const sampleQuestionsByCategory = `
SELECT question_id, question, category, answers, idempotency_key, created_at
FROM questions
WHERE category = $1
ORDER BY random()
LIMIT $2
`

type SampleQuestionsByCategoryParams struct {
	Category string
	Limit    int32
}

// SampleQuestionsByCategory draws up to Limit distinct rows uniformly at random.
func (q *Queries) SampleQuestionsByCategory(ctx context.Context, arg SampleQuestionsByCategoryParams) ([]Question, error) {
	rows, err := q.db.Query(ctx, sampleQuestionsByCategory, arg.Category, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Question
	for rows.Next() {
		var i Question
		if err := rows.Scan(
			&i.QuestionID,
			&i.Question,
			&i.Category,
			&i.Answers,
			&i.IdempotencyKey,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
