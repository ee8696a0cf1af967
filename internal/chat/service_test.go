package chat

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hyperengineering/ridelake/internal/types"
	"github.com/hyperengineering/ridelake/migrations"
)

type mockCompletions struct {
	content string
	err     error
	params  openai.ChatCompletionNewParams
}

func (m *mockCompletions) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.params = params
	if m.err != nil {
		return nil, m.err
	}
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: m.content}},
		},
	}, nil
}

type mockQueryStore struct {
	rows    []types.Row
	err     error
	gotSQL  string
	queried bool
}

func (m *mockQueryStore) QueryDynamic(ctx context.Context, sql string) ([]types.Row, error) {
	m.queried = true
	m.gotSQL = sql
	return m.rows, m.err
}

func newTestService(completions CompletionsService, store QueryStore) *Service {
	return &Service{completions: completions, store: store, model: "gpt-4o-mini"}
}

func TestAskRunsSanitizedSQL(t *testing.T) {
	// Given a model that answers with fenced SQL missing a LIMIT
	completions := &mockCompletions{content: "```sql\nSELECT booking_id FROM gold.rides\n```"}
	store := &mockQueryStore{rows: []types.Row{
		{Columns: []string{"booking_id"}, Values: []types.Scalar{types.ScalarOf("BOK-1")}},
	}}
	svc := newTestService(completions, store)

	// When asking a question
	answer, err := svc.Ask(context.Background(), "show me a ride")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	// Then the sanitized statement runs and results come back
	if store.gotSQL != "SELECT booking_id FROM gold.rides LIMIT 10" {
		t.Errorf("executed sql = %q", store.gotSQL)
	}
	if answer.SQL != store.gotSQL {
		t.Errorf("answer sql = %q, want %q", answer.SQL, store.gotSQL)
	}
	if len(answer.Rows) != 1 {
		t.Errorf("expected 1 row, got %d", len(answer.Rows))
	}
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	store := &mockQueryStore{}
	svc := newTestService(&mockCompletions{content: "SELECT 1"}, store)

	if _, err := svc.Ask(context.Background(), "   "); err == nil {
		t.Fatal("expected error for blank question")
	}
	if store.queried {
		t.Error("store should not be queried for a blank question")
	}
}

func TestAskRejectsUnsafeGeneration(t *testing.T) {
	// Given a model that produces a destructive statement
	store := &mockQueryStore{}
	svc := newTestService(&mockCompletions{content: "DROP TABLE gold.rides"}, store)

	// When asking, then the statement is rejected before execution
	if _, err := svc.Ask(context.Background(), "clean up the table"); err == nil {
		t.Fatal("expected error for unsafe sql")
	}
	if store.queried {
		t.Error("unsafe sql must not reach the store")
	}
}

func TestAskSurfacesCompletionError(t *testing.T) {
	svc := newTestService(&mockCompletions{err: errors.New("rate limited")}, &mockQueryStore{})

	if _, err := svc.Ask(context.Background(), "anything"); err == nil {
		t.Fatal("expected completion error to surface")
	}
}

func TestSystemPromptColumnsExistInSchema(t *testing.T) {
	// Given the gold.rides DDL from the embedded migration
	sql, err := migrations.FS.ReadFile("001_initial_schema.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	_, after, found := strings.Cut(string(sql), "CREATE TABLE gold.rides (")
	if !found {
		t.Fatal("migration missing gold.rides DDL")
	}
	ddl, _, found := strings.Cut(after, "\n);")
	if !found {
		t.Fatal("gold.rides DDL not terminated")
	}

	// When collecting every column the prompt advertises
	_, columnsBlock, found := strings.Cut(systemPrompt, "with columns:")
	if !found {
		t.Fatal("prompt missing columns block")
	}
	advertised := regexp.MustCompile(`([a-z_]+) \(`).FindAllStringSubmatch(columnsBlock, -1)
	if len(advertised) < 10 {
		t.Fatalf("parsed only %d prompt columns, parsing is broken", len(advertised))
	}

	// Then each one is a real column, so generated SQL can execute
	for _, match := range advertised {
		col := match[1]
		if !strings.Contains(ddl, "\n    "+col+" ") {
			t.Errorf("prompt advertises column %q not present in gold.rides DDL", col)
		}
	}
}

func TestAskSurfacesQueryError(t *testing.T) {
	completions := &mockCompletions{content: "SELECT booking_id FROM gold.rides LIMIT 1"}
	svc := newTestService(completions, &mockQueryStore{err: errors.New("relation missing")})

	if _, err := svc.Ask(context.Background(), "anything"); err == nil {
		t.Fatal("expected query error to surface")
	}
}
