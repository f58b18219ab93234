package planner

import (
	"errors"
	"testing"

	"github.com/MrThearMan/undine-sub001/internal/cursor"
	"github.com/MrThearMan/undine-sub001/internal/request"
)

func testPagination() *DefaultPagination {
	return NewDefaultPagination(Limits{DefaultPageSize: 20, MaxPageSize: 100})
}

func resolveWindow(t *testing.T, args *request.PageArgs) (*Window, error) {
	t.Helper()
	entity := testEntity(t, "order")
	ob, err := CompileOrderBy(entity, []request.OrderTerm{{Field: "placedAt", Direction: request.Descending}})
	if err != nil {
		t.Fatalf("CompileOrderBy: %v", err)
	}
	return testPagination().ResolveWindow(entity, ob, args)
}

func TestResolveWindowDefaults(t *testing.T) {
	w, err := resolveWindow(t, nil)
	if err != nil {
		t.Fatalf("ResolveWindow: %v", err)
	}
	if w.Mode != ModeForward || w.Limit != 20 || w.Seek != nil {
		t.Errorf("window = %+v, want forward/20/no seek", w)
	}
	if w.FetchLimit() != 21 {
		t.Errorf("FetchLimit = %d, want 21", w.FetchLimit())
	}
}

func TestResolveWindowModes(t *testing.T) {
	w, err := resolveWindow(t, &request.PageArgs{First: intp(5)})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if w.Mode != ModeForward || w.Limit != 5 {
		t.Errorf("first window = %+v", w)
	}

	w, err = resolveWindow(t, &request.PageArgs{Last: intp(3)})
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if w.Mode != ModeBackward || w.Limit != 3 || !w.Backward() {
		t.Errorf("last window = %+v", w)
	}

	w, err = resolveWindow(t, &request.PageArgs{Offset: intp(40), First: intp(10)})
	if err != nil {
		t.Fatalf("offset: %v", err)
	}
	if w.Mode != ModeOffset || w.Offset != 40 || w.Limit != 10 {
		t.Errorf("offset window = %+v", w)
	}
}

func TestResolveWindowConflicts(t *testing.T) {
	cur := "b2s="
	tests := []struct {
		name string
		args *request.PageArgs
	}{
		{"first and last", &request.PageArgs{First: intp(1), Last: intp(1)}},
		{"after and before", &request.PageArgs{After: &cur, Before: &cur, Last: intp(1)}},
		{"offset with cursor", &request.PageArgs{Offset: intp(5), After: &cur}},
		{"offset with last", &request.PageArgs{Offset: intp(5), Last: intp(2)}},
		{"last with after", &request.PageArgs{Last: intp(2), After: &cur}},
		{"first with before", &request.PageArgs{First: intp(2), Before: &cur}},
		{"before without last", &request.PageArgs{Before: &cur}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := resolveWindow(t, tc.args)
			var conflict *PaginationConflictError
			if !errors.As(err, &conflict) {
				t.Fatalf("err = %v, want PaginationConflictError", err)
			}
		})
	}
}

func TestResolveWindowPageSizeExceeded(t *testing.T) {
	_, err := resolveWindow(t, &request.PageArgs{First: intp(101)})
	var exceeded *PageSizeExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("err = %v, want PageSizeExceededError", err)
	}
	if exceeded.Requested != 101 || exceeded.Max != 100 {
		t.Errorf("error = %+v", exceeded)
	}

	// The cap is a hard rejection, not a clamp: the boundary passes.
	if _, err := resolveWindow(t, &request.PageArgs{First: intp(100)}); err != nil {
		t.Errorf("first=100 rejected: %v", err)
	}
}

func TestResolveWindowNegativeArgs(t *testing.T) {
	if _, err := resolveWindow(t, &request.PageArgs{First: intp(-1)}); err == nil {
		t.Error("negative first accepted")
	}
	if _, err := resolveWindow(t, &request.PageArgs{Offset: intp(-1)}); err == nil {
		t.Error("negative offset accepted")
	}
}

func TestResolveWindowAfterCursor(t *testing.T) {
	entity := testEntity(t, "order")
	ob, err := CompileOrderBy(entity, []request.OrderTerm{{Field: "placedAt", Direction: request.Descending}})
	if err != nil {
		t.Fatalf("CompileOrderBy: %v", err)
	}
	after, err := cursor.Encode(entity.Name, ob.Key(), ob.Directions, []any{"2026-01-05T00:00:00Z", int64(17)})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	w, err := testPagination().ResolveWindow(entity, ob, &request.PageArgs{First: intp(2), After: &after})
	if err != nil {
		t.Fatalf("ResolveWindow: %v", err)
	}
	if w.Seek == nil {
		t.Fatal("seek condition missing")
	}
	sql, args, err := w.Seek.ToSql()
	if err != nil {
		t.Fatalf("seek ToSql: %v", err)
	}
	want := "((`placed_at` < ?) OR (`placed_at` = ? AND `id` < ?))"
	if sql != want {
		t.Errorf("seek sql = %q, want %q", sql, want)
	}
	if len(args) != 3 {
		t.Errorf("seek args = %v, want 3 values (lexicographic expansion)", args)
	}
}

func TestResolveWindowBeforeCursorFlipsComparators(t *testing.T) {
	entity := testEntity(t, "order")
	ob, err := CompileOrderBy(entity, []request.OrderTerm{{Field: "placedAt", Direction: request.Descending}})
	if err != nil {
		t.Fatalf("CompileOrderBy: %v", err)
	}
	before, err := cursor.Encode(entity.Name, ob.Key(), ob.Directions, []any{"2026-01-05T00:00:00Z", int64(17)})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	w, err := testPagination().ResolveWindow(entity, ob, &request.PageArgs{Last: intp(2), Before: &before})
	if err != nil {
		t.Fatalf("ResolveWindow: %v", err)
	}
	sql, _, err := w.Seek.ToSql()
	if err != nil {
		t.Fatalf("seek ToSql: %v", err)
	}
	// Backward fetches run under the reversed ordering, so "before"
	// becomes strictly-greater comparisons.
	want := "((`placed_at` > ?) OR (`placed_at` = ? AND `id` > ?))"
	if sql != want {
		t.Errorf("seek sql = %q, want %q", sql, want)
	}
}

func TestResolveWindowInvalidCursor(t *testing.T) {
	entity := testEntity(t, "order")
	ob, err := CompileOrderBy(entity, []request.OrderTerm{{Field: "placedAt", Direction: request.Descending}})
	if err != nil {
		t.Fatalf("CompileOrderBy: %v", err)
	}
	otherOrder, err := CompileOrderBy(entity, []request.OrderTerm{{Field: "total", Direction: request.Ascending}})
	if err != nil {
		t.Fatalf("CompileOrderBy: %v", err)
	}
	mintedElsewhere, err := cursor.Encode(entity.Name, otherOrder.Key(), otherOrder.Directions, []any{"9.5", int64(1)})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	tests := []struct {
		name  string
		after string
	}{
		{"garbage", "!!!"},
		{"ordering mismatch", mintedElsewhere},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			after := tc.after
			_, err := testPagination().ResolveWindow(entity, ob, &request.PageArgs{After: &after})
			var invalid *InvalidCursorError
			if !errors.As(err, &invalid) {
				t.Fatalf("err = %v, want InvalidCursorError", err)
			}
			if invalid.Arg != "after" {
				t.Errorf("arg = %q, want after", invalid.Arg)
			}
		})
	}
}

func TestResolveWindowCursorWithNullPlacementRejected(t *testing.T) {
	entity := testEntity(t, "customer")
	ob, err := CompileOrderBy(entity, []request.OrderTerm{
		{Field: "signupDate", Nulls: request.NullsLast},
	})
	if err != nil {
		t.Fatalf("CompileOrderBy: %v", err)
	}
	after, err := cursor.Encode(entity.Name, ob.Key(), ob.Directions, []any{"2026-01-01T00:00:00Z", int64(1)})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	_, err = testPagination().ResolveWindow(entity, ob, &request.PageArgs{After: &after})
	var conflict *PaginationConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want PaginationConflictError", err)
	}
}

func TestCountQuery(t *testing.T) {
	entity := testEntity(t, "order")
	pred, err := CompilePredicate(entity, request.Compare("status", request.OpEq, "SHIPPED"))
	if err != nil {
		t.Fatalf("CompilePredicate: %v", err)
	}

	q, err := testPagination().CountQuery(entity, pred, "customer_id", int64(7))
	if err != nil {
		t.Fatalf("CountQuery: %v", err)
	}
	want := "SELECT COUNT(*) FROM `orders` WHERE `customer_id` = ? AND `status` = ?"
	if q.SQL != want {
		t.Errorf("sql = %q, want %q", q.SQL, want)
	}

	root, err := testPagination().CountQuery(entity, nil, "", nil)
	if err != nil {
		t.Fatalf("CountQuery root: %v", err)
	}
	if root.SQL != "SELECT COUNT(*) FROM `orders`" {
		t.Errorf("root sql = %q", root.SQL)
	}
}
