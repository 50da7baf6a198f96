package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestBuiltinsCatalogue(t *testing.T) {
	builtins := Builtins()
	for _, name := range []string{"calculator", "clock"} {
		tool, ok := builtins[name]
		if !ok {
			t.Fatalf("missing builtin %q", name)
		}
		if tool.Description() == "" {
			t.Fatalf("%q has no description", name)
		}
		var schema map[string]any
		if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
			t.Fatalf("%q schema is not JSON: %v", name, err)
		}
		if schema["type"] != "object" {
			t.Fatalf("%q schema type = %v", name, schema["type"])
		}
	}
}

func TestCalculatorSchemaRequiredFields(t *testing.T) {
	var schema struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(NewCalculator().Schema(), &schema); err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{"operation": false, "a": false, "b": false}
	for _, field := range schema.Required {
		want[field] = true
	}
	for field, seen := range want {
		if !seen {
			t.Fatalf("field %q not required in schema", field)
		}
	}
}

func TestCalculatorOperations(t *testing.T) {
	calc := NewCalculator()
	tests := []struct {
		name  string
		input string
		want  float64
	}{
		{"add", `{"operation":"add","a":2,"b":3}`, 5},
		{"subtract", `{"operation":"subtract","a":10,"b":4}`, 6},
		{"multiply", `{"operation":"multiply","a":6,"b":7}`, 42},
		{"divide", `{"operation":"divide","a":9,"b":3}`, 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			value, err := calc.Execute(context.Background(), json.RawMessage(tc.input))
			if err != nil {
				t.Fatal(err)
			}
			payload, ok := value.(map[string]any)
			if !ok {
				t.Fatalf("unexpected payload type %T", value)
			}
			if payload["result"] != tc.want {
				t.Fatalf("result = %v, want %v", payload["result"], tc.want)
			}
		})
	}
}

func TestCalculatorDivisionByZero(t *testing.T) {
	_, err := NewCalculator().Execute(context.Background(), json.RawMessage(`{"operation":"divide","a":1,"b":0}`))
	if err == nil || !strings.Contains(err.Error(), "division by zero") {
		t.Fatalf("expected division by zero error, got %v", err)
	}
}

func TestCalculatorUnknownOperation(t *testing.T) {
	_, err := NewCalculator().Execute(context.Background(), json.RawMessage(`{"operation":"modulo","a":1,"b":2}`))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestClock(t *testing.T) {
	fixed := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	clock := newClockWithNow(func() time.Time { return fixed })

	value, err := clock.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	payload := value.(map[string]any)
	if payload["time"] != "2025-06-15T12:00:00Z" {
		t.Fatalf("time = %v", payload["time"])
	}
	if payload["timezone"] != "UTC" {
		t.Fatalf("timezone = %v", payload["timezone"])
	}
}

func TestClockTimezone(t *testing.T) {
	fixed := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	clock := newClockWithNow(func() time.Time { return fixed })

	value, err := clock.Execute(context.Background(), json.RawMessage(`{"timezone":"America/New_York"}`))
	if err != nil {
		t.Fatal(err)
	}
	payload := value.(map[string]any)
	if !strings.HasPrefix(payload["time"].(string), "2025-06-15T08:00:00") {
		t.Fatalf("time = %v", payload["time"])
	}
}

func TestClockUnknownTimezone(t *testing.T) {
	clock := NewClock()
	if _, err := clock.Execute(context.Background(), json.RawMessage(`{"timezone":"Atlantis/Lost"}`)); err == nil {
		t.Fatal("expected error")
	}
}
