package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cicconel11/TruthLayer-sub001/internal/queue"
)

type echoPayload struct {
	Query   string   `json:"query"`
	Engines []string `json:"engines"`
	Count   int      `json:"count"`
}

func TestTypedHandler(t *testing.T) {
	handler := queue.Typed(func(_ context.Context, p echoPayload, _ *queue.Job) (any, error) {
		return p, nil
	})

	tests := []struct {
		name    string
		payload any
		want    echoPayload
		wantErr bool
	}{
		{
			name:    "struct payload passes through",
			payload: echoPayload{Query: "climate", Engines: []string{"google"}, Count: 3},
			want:    echoPayload{Query: "climate", Engines: []string{"google"}, Count: 3},
		},
		{
			name: "map payload decodes by json tag",
			payload: map[string]any{
				"query":   "elections",
				"engines": []any{"bing", "duckduckgo"},
				"count":   2,
			},
			want: echoPayload{Query: "elections", Engines: []string{"bing", "duckduckgo"}, Count: 2},
		},
		{
			name:    "raw json unmarshals",
			payload: json.RawMessage(`{"query":"privacy","count":1}`),
			want:    echoPayload{Query: "privacy", Count: 1},
		},
		{
			name:    "byte slice unmarshals",
			payload: []byte(`{"query":"health"}`),
			want:    echoPayload{Query: "health"},
		},
		{
			name:    "nil payload yields zero value",
			payload: nil,
			want:    echoPayload{},
		},
		{
			name:    "unsupported payload type fails",
			payload: 42,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			job := &queue.Job{Type: "collection", Payload: tt.payload}
			result, err := handler(context.Background(), job)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected decode error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			got, ok := result.(echoPayload)
			if !ok {
				t.Fatalf("unexpected result type %T", result)
			}
			if got.Query != tt.want.Query || got.Count != tt.want.Count {
				t.Errorf("decoded %+v, want %+v", got, tt.want)
			}
			if len(got.Engines) != len(tt.want.Engines) {
				t.Errorf("decoded engines %v, want %v", got.Engines, tt.want.Engines)
			}
		})
	}
}

func TestRetryAfter(t *testing.T) {
	base := errors.New("rate limited")
	wrapped := queue.RetryAfter(base, 2*time.Second)

	if !errors.Is(wrapped, base) {
		t.Error("expected wrapped error to match the base error")
	}
	if wrapped.Error() == base.Error() {
		t.Error("expected wrapped message to mention the delay")
	}
	if queue.RetryAfter(nil, time.Second) != nil {
		t.Error("expected nil error to stay nil")
	}
}

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    queue.Status
		to      queue.Status
		wantErr bool
	}{
		// Valid transitions
		{"pending to running", queue.StatusPending, queue.StatusRunning, false},
		{"pending to cancelled", queue.StatusPending, queue.StatusCancelled, false},
		{"running to completed", queue.StatusRunning, queue.StatusCompleted, false},
		{"running to failed", queue.StatusRunning, queue.StatusFailed, false},
		{"running to pending", queue.StatusRunning, queue.StatusPending, false}, // retry

		// Invalid transitions
		{"pending to completed", queue.StatusPending, queue.StatusCompleted, true},
		{"pending to failed", queue.StatusPending, queue.StatusFailed, true},
		{"running to cancelled", queue.StatusRunning, queue.StatusCancelled, true},
		{"completed to running", queue.StatusCompleted, queue.StatusRunning, true},
		{"failed to running", queue.StatusFailed, queue.StatusRunning, true},
		{"cancelled to pending", queue.StatusCancelled, queue.StatusPending, true},
		{"unknown source", queue.Status("bogus"), queue.StatusRunning, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := queue.ValidateTransition(tt.from, tt.to)
			if tt.wantErr && err == nil {
				t.Errorf("expected error for %s -> %s", tt.from, tt.to)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error for %s -> %s: %v", tt.from, tt.to, err)
			}
		})
	}
}

func TestStatusIsTerminal(t *testing.T) {
	terminal := []queue.Status{queue.StatusCompleted, queue.StatusFailed, queue.StatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []queue.Status{queue.StatusPending, queue.StatusRunning} {
		if s.IsTerminal() {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    queue.Priority
		wantErr bool
	}{
		{"string high", "high", queue.PriorityHigh, false},
		{"string normal", "normal", queue.PriorityNormal, false},
		{"string low", "low", queue.PriorityLow, false},
		{"empty string defaults to normal", "", queue.PriorityNormal, false},
		{"int value", 1, queue.PriorityHigh, false},
		{"int64 value", int64(3), queue.PriorityLow, false},
		{"priority value", queue.PriorityNormal, queue.PriorityNormal, false},
		{"unknown string", "urgent", queue.PriorityNormal, true},
		{"out of range int", 9, queue.PriorityNormal, true},
		{"unsupported type", 1.5, queue.PriorityNormal, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := queue.ParsePriority(tt.value)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %v", tt.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestPriorityJSON(t *testing.T) {
	data, err := json.Marshal(queue.PriorityHigh)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `"high"` {
		t.Errorf(`expected "high", got %s`, data)
	}

	var p queue.Priority
	if err := json.Unmarshal([]byte(`"low"`), &p); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if p != queue.PriorityLow {
		t.Errorf("expected low, got %s", p)
	}
}
