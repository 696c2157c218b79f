package graph

import (
	"reflect"
	"testing"
)

func TestReplaceReducer(t *testing.T) {
	if got := ReplaceReducer("old", "new"); got != "new" {
		t.Fatalf("ReplaceReducer = %v, want %v", got, "new")
	}
}

func TestConcatReducer(t *testing.T) {
	cases := []struct {
		name    string
		current any
		update  any
		want    []any
	}{
		{"nil current", nil, []any{"a"}, []any{"a"}},
		{"append slice", []any{"a"}, []any{"b", "c"}, []any{"a", "b", "c"}},
		{"scalar update", []any{"a"}, "b", []any{"a", "b"}},
		{"nil update", []any{"a"}, nil, []any{"a"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ConcatReducer(tc.current, tc.update)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMergeReducer(t *testing.T) {
	current := map[string]any{"a": 1, "b": 2}
	update := map[string]any{"b": 3, "c": 4}
	got := MergeReducer(current, update)
	want := map[string]any{"a": 1, "b": 3, "c": 4}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestMergeByIDReducer(t *testing.T) {
	reducer := MergeByIDReducer("id")
	current := []any{
		map[string]any{"id": "1", "status": "pending"},
		map[string]any{"id": "2", "status": "pending"},
	}
	update := []any{
		map[string]any{"id": "2", "status": "done"},
		map[string]any{"id": "3", "status": "pending"},
	}
	got := reducer(current, update).([]any)
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d: %v", len(got), got)
	}
	if got[0].(map[string]any)["id"] != "1" {
		t.Fatalf("expected record 1 to keep its original position, got %v", got[0])
	}
	if got[1].(map[string]any)["status"] != "done" {
		t.Fatalf("expected record 2 updated in place, got %v", got[1])
	}
	if got[2].(map[string]any)["id"] != "3" {
		t.Fatalf("expected new record 3 appended, got %v", got[2])
	}
}

func TestMergeByIDReducerEmptyUpdate(t *testing.T) {
	reducer := MergeByIDReducer("id")
	current := []any{map[string]any{"id": "1"}}
	got := reducer(current, []any{})
	if !reflect.DeepEqual(got, []any{map[string]any{"id": "1"}}) {
		t.Fatalf("expected current preserved on empty update, got %v", got)
	}
}

func TestMaxMinReducer(t *testing.T) {
	if got := MaxReducer(3.0, 5.0); got != 5.0 {
		t.Fatalf("MaxReducer = %v, want 5.0", got)
	}
	if got := MaxReducer(5.0, 3.0); got != 5.0 {
		t.Fatalf("MaxReducer = %v, want 5.0", got)
	}
	if got := MinReducer(3.0, 5.0); got != 3.0 {
		t.Fatalf("MinReducer = %v, want 3.0", got)
	}
	if got := MaxReducer(nil, 5.0); got != 5.0 {
		t.Fatalf("MaxReducer with nil current = %v, want 5.0", got)
	}
}

func TestSumReducer(t *testing.T) {
	if got := SumReducer(2.0, 3.0); got != 5.0 {
		t.Fatalf("SumReducer = %v, want 5.0", got)
	}
	if got := SumReducer(nil, 3.0); got != 3.0 {
		t.Fatalf("SumReducer with nil current = %v, want 3.0", got)
	}
}

func TestOrAndReducer(t *testing.T) {
	if OrReducer(false, true) != true {
		t.Fatal("OrReducer(false, true) should be true")
	}
	if AndReducer(true, false) != false {
		t.Fatal("AndReducer(true, false) should be false")
	}
	if OrReducer("", "") != false {
		t.Fatal("OrReducer of two empty strings should be false")
	}
}

func TestIfDefinedReducer(t *testing.T) {
	if got := IfDefinedReducer("current", nil); got != "current" {
		t.Fatalf("IfDefinedReducer with nil update = %v, want %q", got, "current")
	}
	if got := IfDefinedReducer("current", "update"); got != "update" {
		t.Fatalf("IfDefinedReducer with non-nil update = %v, want %q", got, "update")
	}
}
