package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidTableName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"Valid standard", "research_archive", true},
		{"Valid with numbers", "archive2024", true},
		{"Valid short", "a", true},
		{"Valid max length", "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_", true}, // 63 chars
		{"Invalid start with number", "1archive", false},
		{"Invalid special chars", "research-archive", false},
		{"Invalid SQL injection", "sessions; DROP TABLE research_sessions", false},
		{"Invalid empty", "", false},
		{"Invalid too long", "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789__", false}, // 64 chars
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isValidTableName(tt.input))
		})
	}
}

func TestBuildMetadataQuery(t *testing.T) {
	tests := []struct {
		name      string
		filter    map[string]any
		initial   int
		wantQuery string
		wantArgs  int
		wantErr   bool
	}{
		{
			name:      "empty filter",
			filter:    map[string]any{},
			wantQuery: "TRUE",
		},
		{
			name:      "session filter after the embedding argument",
			filter:    map[string]any{"session_id": "20240101_000000_000000"},
			initial:   1,
			wantQuery: "metadata @> $2",
			wantArgs:  2,
		},
		{
			name:      "implicit and in key order",
			filter:    map[string]any{"sub_query": "b", "session_id": "a"},
			wantQuery: "metadata @> $1 AND metadata @> $2",
			wantArgs:  2,
		},
		{
			name: "or",
			filter: map[string]any{
				"$or": []any{
					map[string]any{"session_id": "a"},
					map[string]any{"session_id": "b"},
				},
			},
			wantQuery: "((metadata @> $1) OR (metadata @> $2))",
			wantArgs:  2,
		},
		{
			name: "nested",
			filter: map[string]any{
				"$or": []any{
					map[string]any{"a": 1},
					map[string]any{"$and": []any{map[string]any{"b": 2}, map[string]any{"c": 3}}},
				},
			},
			wantQuery: "((metadata @> $1) OR (((metadata @> $2) AND (metadata @> $3))))",
			wantArgs:  3,
		},
		{
			name:      "not",
			filter:    map[string]any{"$not": map[string]any{"url": "https://example.org"}},
			wantQuery: "NOT (metadata @> $1)",
			wantArgs:  1,
		},
		{
			name:      "empty list is ignored",
			filter:    map[string]any{"$or": []any{}},
			wantQuery: "TRUE",
		},
		{name: "or needs a list", filter: map[string]any{"$or": "invalid"}, wantErr: true},
		{name: "and items must be objects", filter: map[string]any{"$and": []any{"invalid"}}, wantErr: true},
		{name: "not needs an object", filter: map[string]any{"$not": []any{"invalid"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := make([]any, tt.initial)
			got, err := buildMetadataQuery(tt.filter, &args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantQuery, got)
			assert.Len(t, args, tt.wantArgs)
		})
	}
}
