package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

func TestSanitizeJSONForPostgres(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"null escape dropped", `{"text":"a\u0000b"}`, `{"text":"ab"}`},
		{"control escape becomes space", `{"text":"a\u0007b\u001Fc"}`, `{"text":"a b c"}`},
		{"printable escapes kept", `{"text":"Aé"}`, `{"text":"Aé"}`},
		{"plain json untouched", `{"slides":[1,2]}`, `{"slides":[1,2]}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := string(sanitizeJSONForPostgres([]byte(tc.in)))
			if got != tc.want {
				t.Errorf("sanitizeJSONForPostgres(%s) = %s, want %s", tc.in, got, tc.want)
			}
		})
	}
}

func TestSanitizedPayloadStaysValidJSON(t *testing.T) {
	raw, err := json.Marshal(map[string]string{"text": "slide\x00title\x01"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var back map[string]string
	if err := json.Unmarshal(sanitizeJSONForPostgres(raw), &back); err != nil {
		t.Fatalf("sanitized payload is not JSON: %v", err)
	}
	if back["text"] != "slidetitle " {
		t.Errorf("text = %q", back["text"])
	}
}

func TestTermCollectionName(t *testing.T) {
	tests := []struct {
		jobID string
		want  string
	}{
		{"7f9c-AB12", "terms_7f9c-ab12"},
		{"job/1 x", "terms_job_1_x"},
		{"", "terms_"},
	}
	for _, tc := range tests {
		if got := termCollectionName(tc.jobID); got != tc.want {
			t.Errorf("termCollectionName(%q) = %q, want %q", tc.jobID, got, tc.want)
		}
	}
}

func TestNewTermIndexValidatesArguments(t *testing.T) {
	q := &QdrantClient{}
	embed := func(ctx context.Context, text string) ([]float32, error) { return []float32{1}, nil }

	if _, err := q.NewTermIndex(context.Background(), "job", nil, 4); err == nil {
		t.Error("expected error without embedding function")
	}
	if _, err := q.NewTermIndex(context.Background(), "job", embed, 0); err == nil {
		t.Error("expected error without vector size")
	}
}

func TestTermIndexRejectsWrongDimensions(t *testing.T) {
	idx := &QdrantTermIndex{
		collection: "terms_job",
		size:       4,
		embed: func(ctx context.Context, text string) ([]float32, error) {
			return []float32{1, 0}, nil
		},
	}
	if _, _, _, err := idx.Nearest(context.Background(), "Acme"); err == nil {
		t.Error("expected dimension error from Nearest")
	}
	if err := idx.Add(context.Background(), "id", "Acme"); err == nil {
		t.Error("expected dimension error from Add")
	}
}

func TestDescribePQError(t *testing.T) {
	err := describePQError(fmt.Errorf("insert: %w", &pq.Error{Code: "23505", Message: "duplicate key", Detail: "Key (id)=(x) already exists."}))
	if got := err.Error(); got != "insert: pq: duplicate key (code=23505, detail=Key (id)=(x) already exists.)" {
		t.Errorf("describePQError = %q", got)
	}

	plain := errors.New("connection refused")
	if describePQError(plain) != plain {
		t.Error("non-pq errors should pass through unchanged")
	}
}

func TestStorageManagerTermIndexRequiresQdrant(t *testing.T) {
	sm := &StorageManager{}
	embed := func(ctx context.Context, text string) ([]float32, error) { return nil, nil }
	if _, err := sm.NewTermIndex(context.Background(), "job", embed, 8); err == nil {
		t.Error("expected error when qdrant is not configured")
	}
}
