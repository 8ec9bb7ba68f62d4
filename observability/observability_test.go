package observability

import (
	"context"
	"errors"
	"testing"
)

func TestFieldConstructors(t *testing.T) {
	err := errors.New("boom")
	tests := []struct {
		name  string
		field Field
		key   string
		value interface{}
	}{
		{"string", String("k", "v"), "k", "v"},
		{"int", Int("n", 7), "n", 7},
		{"int64", Int64("big", int64(1 << 40)), "big", int64(1 << 40)},
		{"float", Float("ratio", 0.25), "ratio", 0.25},
		{"error", Error("err", err), "err", err},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.field.Key() != tt.key {
				t.Errorf("Key() = %q, want %q", tt.field.Key(), tt.key)
			}
			if tt.field.Value() != tt.value {
				t.Errorf("Value() = %v, want %v", tt.field.Value(), tt.value)
			}
		})
	}
}

func TestNopImplementations(t *testing.T) {
	var l Logger = NopLogger{}
	l.Debug("d", Float("f", 1))
	l.Info("i")
	l.Warn("w")
	l.Error("e")
	if _, ok := l.With(Int("n", 1)).(NopLogger); !ok {
		t.Errorf("With must return a NopLogger")
	}

	ctx, span := NopTracer().StartSpan(context.Background(), "op")
	if ctx == nil {
		t.Fatalf("StartSpan returned nil context")
	}
	span.SetTag(MetricSaveTime, 1)
	span.SetError(errors.New("boom"))
	span.Finish()
}
