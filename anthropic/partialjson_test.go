package anthropic

import (
	"encoding/json"
	"reflect"
	"testing"
)

func parseTo(t *testing.T, fragment string) any {
	t.Helper()
	var v any
	if err := parsePartialJSON(fragment, &v); err != nil {
		t.Fatalf("parsePartialJSON(%q) error: %v", fragment, err)
	}
	return v
}

func TestParsePartialJSONComplete(t *testing.T) {
	got := parseTo(t, `{"location":"Paris","days":3}`)
	want := map[string]any{"location": "Paris", "days": float64(3)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v", got)
	}
}

func TestParsePartialJSONTruncated(t *testing.T) {
	tests := []struct {
		fragment string
		want     any
	}{
		{`{"location":"Par`, map[string]any{"location": "Par"}},
		{`{"location":"Paris","da`, map[string]any{"location": "Paris"}},
		{`{"location":"Paris","days":`, map[string]any{"location": "Paris"}},
		{`{"location":"Paris",`, map[string]any{"location": "Paris"}},
		{`{"a":[1,2`, map[string]any{"a": []any{float64(1), float64(2)}}},
		{`{"a":{"b":tr`, map[string]any{"a": map[string]any{}}},
		{`[1,2,`, []any{float64(1), float64(2)}},
		{`{"ok":true,"x":fal`, map[string]any{"ok": true}},
		{`{"n":12`, map[string]any{"n": float64(12)}},
		{`{"s":"a\`, map[string]any{"s": "a"}},
		{`{`, map[string]any{}},
	}
	for _, tt := range tests {
		got := parseTo(t, tt.fragment)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parsePartialJSON(%q) = %#v, want %#v", tt.fragment, got, tt.want)
		}
	}
}

func TestParsePartialJSONNested(t *testing.T) {
	got := parseTo(t, `{"query":{"filters":[{"field":"status","value":"act`)
	want := map[string]any{
		"query": map[string]any{
			"filters": []any{map[string]any{"field": "status", "value": "act"}},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v", got)
	}
}

func TestParsePartialJSONIntoStruct(t *testing.T) {
	var out struct {
		Location string `json:"location"`
	}
	if err := parsePartialJSON(`{"location":"Lis`, &out); err != nil {
		t.Fatal(err)
	}
	if out.Location != "Lis" {
		t.Errorf("Location = %q", out.Location)
	}
}

func TestParsePartialJSONGarbage(t *testing.T) {
	var v any
	if err := parsePartialJSON(`not json at all`, &v); err == nil {
		t.Error("expected error for non-JSON input")
	}
}

func TestParsePartialJSONRawRoundTrip(t *testing.T) {
	var v any
	if err := parsePartialJSON(`{"a":1,"b":[true,null]}`, &v); err != nil {
		t.Fatal(err)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"a":1,"b":[true,null]}` {
		t.Errorf("round trip = %s", raw)
	}
}
