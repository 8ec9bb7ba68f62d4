package optimize

import (
	"context"
	"testing"

	"github.com/wudi/pdfpress/document"
	"github.com/wudi/pdfpress/observability"
)

// recordingLogger captures emitted fields by key for assertions.
type recordingLogger struct {
	fields map[string]interface{}
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{fields: make(map[string]interface{})}
}

func (l *recordingLogger) record(fields []observability.Field) {
	for _, f := range fields {
		l.fields[f.Key()] = f.Value()
	}
}

func (l *recordingLogger) Debug(_ string, fields ...observability.Field) { l.record(fields) }
func (l *recordingLogger) Info(_ string, fields ...observability.Field)  { l.record(fields) }
func (l *recordingLogger) Warn(_ string, fields ...observability.Field)  { l.record(fields) }
func (l *recordingLogger) Error(_ string, fields ...observability.Field) { l.record(fields) }

func (l *recordingLogger) With(...observability.Field) observability.Logger { return l }

func TestRewriteImagesReportsSizeRatio(t *testing.T) {
	logger := newRecordingLogger()
	doc := document.New()

	if _, err := RewriteImages(context.Background(), doc, RewriteConfig{Logger: logger}); err != nil {
		t.Fatalf("RewriteImages: %v", err)
	}

	v, ok := logger.fields["size_ratio"]
	if !ok {
		t.Fatalf("rewrite summary missing the size_ratio field: %v", logger.fields)
	}
	ratio, ok := v.(float64)
	if !ok {
		t.Fatalf("size_ratio is %T, want float64", v)
	}
	if ratio != 1.0 {
		t.Errorf("ratio with no rewrites = %v, want 1.0", ratio)
	}
}
