package qs

import "testing"

func TestEncode_CommaArrays(t *testing.T) {
	e := DefaultEncoder()
	got, err := e.Encode(map[string]any{
		"ids":  []any{1, 2, 3},
		"name": "batch",
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if got != "ids=1%2C2%2C3&name=batch" {
		t.Fatalf("unexpected encoding: %q", got)
	}
}

func TestEncode_RepeatAndBrackets(t *testing.T) {
	for _, tc := range []struct {
		format ArrayFormat
		want   string
	}{
		{ArrayRepeat, "tag=a&tag=b"},
		{ArrayBrackets, "tag%5B%5D=a&tag%5B%5D=b"},
	} {
		e := Encoder{Array: tc.format, Nested: NestedBrackets}
		got, err := e.Encode(map[string]any{"tag": []any{"a", "b"}})
		if err != nil {
			t.Fatalf("Encode(%s): %v", tc.format, err)
		}
		if got != tc.want {
			t.Fatalf("format %s: got %q, want %q", tc.format, got, tc.want)
		}
	}
}

func TestEncode_NestedObjects(t *testing.T) {
	v := map[string]any{"filter": map[string]any{"status": "done", "meta": map[string]any{"env": "prod"}}}

	e := Encoder{Array: ArrayComma, Nested: NestedBrackets}
	got, err := e.Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if got != "filter%5Bmeta%5D%5Benv%5D=prod&filter%5Bstatus%5D=done" {
		t.Fatalf("brackets: %q", got)
	}

	e = Encoder{Array: ArrayComma, Nested: NestedDots}
	got, err = e.Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if got != "filter.meta.env=prod&filter.status=done" {
		t.Fatalf("dots: %q", got)
	}
}

func TestEncode_PrimitivesAndNull(t *testing.T) {
	e := DefaultEncoder()
	vals, err := e.Values(map[string]any{
		"ok":     true,
		"off":    false,
		"skip":   nil,
		"limit":  20,
		"ratio":  0.5,
		"cursor": "abc",
	})
	if err != nil {
		t.Fatalf("Values: %v", err)
	}
	if vals.Get("ok") != "true" || vals.Get("off") != "false" {
		t.Fatalf("bool encoding: %v", vals)
	}
	if _, present := vals["skip"]; present {
		t.Fatalf("null value should be dropped: %v", vals)
	}
	if vals.Get("limit") != "20" || vals.Get("ratio") != "0.5" || vals.Get("cursor") != "abc" {
		t.Fatalf("primitive encoding: %v", vals)
	}
}

func TestEncode_UnsupportedArrayFormat(t *testing.T) {
	e := Encoder{Array: "indices"}
	if _, err := e.Encode(map[string]any{"a": []any{1}}); err == nil {
		t.Fatal("expected error for indices format")
	}
}
