package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/trivia-pipeline/internal/importer/external"
	"github.com/gokatarajesh/trivia-pipeline/internal/question"
)

var ErrUnknownSource = errors.New("importer: unknown source")

// Source is an upstream trivia API.
type Source interface {
	Name() string
	Fetch(ctx context.Context, amount int, category string) ([]external.Item, error)
}

// Submitter is the submission path; imported questions go through the same validation and queue as user submissions.
type Submitter interface {
	Submit(ctx context.Context, req question.SubmissionRequest) (question.SubmissionReceipt, error)
}

// Request selects what to import.
type Request struct {
	Source   string
	Amount   int
	Category string
}

// Result summarises one import run.
type Result struct {
	Fetched   int
	Submitted int
	Skipped   int
	Failed    int
}

// Importer pulls questions from upstream APIs and submits them to the pipeline.
type Importer struct {
	sources   map[string]Source
	submitter Submitter
	shuffler  *question.Shuffler
	logger    zerolog.Logger
}

func New(submitter Submitter, shuffler *question.Shuffler, logger zerolog.Logger, sources ...Source) *Importer {
	if shuffler == nil {
		shuffler = question.NewShuffler(nil)
	}
	m := make(map[string]Source, len(sources))
	for _, s := range sources {
		m[s.Name()] = s
	}
	return &Importer{
		sources:   m,
		submitter: submitter,
		shuffler:  shuffler,
		logger:    logger.With().Str("component", "importer").Logger(),
	}
}

// Import fetches req.Amount questions and submits each one.
// Items that are not four-answer multiple choice are skipped. A broker outage stops the run.
func (im *Importer) Import(ctx context.Context, req Request) (Result, error) {
	src, ok := im.sources[req.Source]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownSource, req.Source)
	}
	if req.Amount <= 0 {
		req.Amount = 10
	}

	items, err := src.Fetch(ctx, req.Amount, req.Category)
	if err != nil {
		return Result{}, fmt.Errorf("fetch from %s: %w", src.Name(), err)
	}

	res := Result{Fetched: len(items)}
	log := im.logger.With().Str("source", src.Name()).Logger()
	for _, item := range items {
		sub, ok := im.Convert(item)
		if !ok {
			res.Skipped++
			continue
		}
		_, err := im.submitter.Submit(ctx, sub)
		switch {
		case err == nil:
			res.Submitted++
		case question.ReasonOf(err) != "":
			log.Debug().Err(err).Str("question", sub.Text).Msg("imported question rejected")
			res.Skipped++
		case errors.Is(err, question.ErrBrokerUnavailable), errors.Is(err, context.Canceled):
			res.Failed++
			return res, err
		default:
			log.Warn().Err(err).Msg("imported question submit failed")
			res.Failed++
		}
	}

	log.Info().
		Int("fetched", res.Fetched).
		Int("submitted", res.Submitted).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("import finished")
	return res, nil
}

// Convert maps an upstream item to a submission with the correct answer at a random position.
func (im *Importer) Convert(item external.Item) (question.SubmissionRequest, bool) {
	if len(item.Incorrect) != question.AnswerCount-1 || strings.TrimSpace(item.Correct) == "" {
		return question.SubmissionRequest{}, false
	}

	ordered := make([]question.Answer, 0, question.AnswerCount)
	ordered = append(ordered, question.Answer{Text: item.Correct, IsCorrect: true})
	for _, text := range item.Incorrect {
		ordered = append(ordered, question.Answer{Text: text})
	}

	answers := make([]question.Answer, len(ordered))
	for i, j := range im.shuffler.Permutation(len(ordered)) {
		answers[i] = ordered[j]
	}

	return question.SubmissionRequest{
		Text:     strings.TrimSpace(item.Question),
		Answers:  answers,
		Category: strings.TrimSpace(item.Category),
	}, true
}
