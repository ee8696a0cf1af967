// Package chat turns natural-language questions into guarded SQL queries
// over the curated ride data.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hyperengineering/ridelake/internal/types"
)

// systemPrompt pins the model to the curated schema and read-only output.
const systemPrompt = `You are a PostgreSQL analyst. Generate exactly one SELECT statement answering the user's question, and output only the SQL with no explanation.

The only queryable table is gold.rides with columns:
  booking_id (text, primary key), ride_timestamp (timestamp),
  booking_status (text: 'Completed', 'Cancelled by Customer', 'Cancelled by Driver', 'Incomplete'),
  customer_id (text), vehicle_type (text),
  booking_value (double precision), ride_distance (double precision), revenue_per_km (double precision),
  driver_rating (double precision), customer_rating (double precision),
  payment_method (text), unified_cancellation_reason (text)

Never modify data. Include a LIMIT clause.`

// CompletionsService is the chat-completion surface of the OpenAI client,
// abstracted for testing.
type CompletionsService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// QueryStore executes guarded read-only SQL.
type QueryStore interface {
	QueryDynamic(ctx context.Context, sql string) ([]types.Row, error)
}

// Answer is the result of one chat question.
type Answer struct {
	Question string      `json:"question"`
	SQL      string      `json:"sql"`
	Rows     []types.Row `json:"rows"`
}

// Service answers questions by generating SQL and running it against the
// gold layer.
type Service struct {
	completions CompletionsService
	store       QueryStore
	model       openai.ChatModel
}

// NewService creates a chat service backed by the OpenAI API.
func NewService(apiKey, model string, store QueryStore) *Service {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Service{
		completions: client.Chat.Completions,
		store:       store,
		model:       openai.ChatModel(model),
	}
}

// Ask generates SQL for the question, sanitizes it, and executes it.
func (s *Service) Ask(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question must not be empty")
	}

	resp, err := s.completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(question),
		}),
		Model: openai.F(s.model),
	})
	if err != nil {
		return nil, fmt.Errorf("sql generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("sql generation failed: no choices returned")
	}

	sql, err := SanitizeSQL(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("generated sql rejected: %w", err)
	}

	rows, err := s.store.QueryDynamic(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}

	return &Answer{Question: question, SQL: sql, Rows: rows}, nil
}
