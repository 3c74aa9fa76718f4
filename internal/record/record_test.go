package record

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestSanitize(t *testing.T) {
	in := map[string]any{
		"text":  "checkout",
		"count": 3,
		"ratio": 0.5,
		"flag":  true,
		"none":  nil,
		"err":   errors.New("boom"),
		"when":  time.Unix(0, 0).UTC(),
		"nested": map[string]any{
			"inner": errors.New("inner boom"),
		},
		"list": []any{"a", 1, errors.New("list boom")},
	}

	got := Sanitize(in)

	if got["text"] != "checkout" || got["count"] != 3 || got["ratio"] != 0.5 || got["flag"] != true {
		t.Errorf("safe kinds altered: %v", got)
	}
	if got["err"] != "boom" {
		t.Errorf("error value = %v, want its message", got["err"])
	}
	if _, ok := got["when"].(string); !ok {
		t.Errorf("time value = %v (%T), want stringified", got["when"], got["when"])
	}

	nested, ok := got["nested"].(Properties)
	if !ok {
		t.Fatalf("nested = %T, want Properties", got["nested"])
	}
	if nested["inner"] != "inner boom" {
		t.Errorf("nested error = %v", nested["inner"])
	}

	if want := []any{"a", 1, "list boom"}; !reflect.DeepEqual(got["list"], want) {
		t.Errorf("list = %v, want %v", got["list"], want)
	}
}

func TestSanitizeNil(t *testing.T) {
	if Sanitize(nil) != nil {
		t.Error("Sanitize(nil) != nil")
	}
}

func TestMillis(t *testing.T) {
	ts := time.UnixMilli(1700000000123)
	if got := Millis(ts); got != 1700000000123 {
		t.Errorf("Millis() = %d", got)
	}
}
