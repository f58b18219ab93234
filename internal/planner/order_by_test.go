package planner

import (
	"errors"
	"reflect"
	"testing"

	"github.com/MrThearMan/undine-sub001/internal/request"
)

func TestCompileOrderByAppendsKeyTiebreak(t *testing.T) {
	ob, err := CompileOrderBy(testEntity(t, "order"), []request.OrderTerm{
		{Field: "placedAt", Direction: request.Descending},
	})
	if err != nil {
		t.Fatalf("CompileOrderBy: %v", err)
	}
	if got := ob.Columns(); !reflect.DeepEqual(got, []string{"placed_at", "id"}) {
		t.Errorf("columns = %v, want [placed_at id]", got)
	}
	if got := ob.Directions; !reflect.DeepEqual(got, []string{"DESC", "DESC"}) {
		t.Errorf("directions = %v, want [DESC DESC]", got)
	}
}

func TestCompileOrderByUniqueFieldNeedsNoTiebreak(t *testing.T) {
	ob, err := CompileOrderBy(testEntity(t, "order"), []request.OrderTerm{
		{Field: "id", Direction: request.Ascending},
	})
	if err != nil {
		t.Fatalf("CompileOrderBy: %v", err)
	}
	if ob.Len() != 1 {
		t.Errorf("len = %d, want 1 (id is already unique)", ob.Len())
	}
}

func TestCompileOrderByDefaultsToKey(t *testing.T) {
	ob, err := CompileOrderBy(testEntity(t, "order"), nil)
	if err != nil {
		t.Fatalf("CompileOrderBy: %v", err)
	}
	if got := ob.Columns(); !reflect.DeepEqual(got, []string{"id"}) {
		t.Errorf("columns = %v, want [id]", got)
	}
	if ob.Directions[0] != "ASC" {
		t.Errorf("direction = %s, want ASC", ob.Directions[0])
	}
}

func TestCompileOrderByUnknownField(t *testing.T) {
	_, err := CompileOrderBy(testEntity(t, "order"), []request.OrderTerm{{Field: "shipDate"}})
	var unknown *UnknownFieldError
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v, want UnknownFieldError", err)
	}
}

func TestCompileOrderByBadDirection(t *testing.T) {
	_, err := CompileOrderBy(testEntity(t, "order"), []request.OrderTerm{
		{Field: "status", Direction: "SIDEWAYS"},
	})
	if err == nil {
		t.Fatal("expected error for unknown direction")
	}
}

func TestOrderByClausesWithNullPlacement(t *testing.T) {
	ob, err := CompileOrderBy(testEntity(t, "customer"), []request.OrderTerm{
		{Field: "signupDate", Direction: request.Ascending, Nulls: request.NullsLast},
	})
	if err != nil {
		t.Fatalf("CompileOrderBy: %v", err)
	}
	want := []string{"ISNULL(`signup_date`) ASC", "`signup_date` ASC", "`id` ASC"}
	if got := ob.Clauses(); !reflect.DeepEqual(got, want) {
		t.Errorf("clauses = %v, want %v", got, want)
	}
	if !ob.HasNullOverride() {
		t.Error("HasNullOverride = false")
	}
}

func TestOrderByReversed(t *testing.T) {
	ob, err := CompileOrderBy(testEntity(t, "order"), []request.OrderTerm{
		{Field: "placedAt", Direction: request.Descending},
		{Field: "status", Direction: request.Ascending},
	})
	if err != nil {
		t.Fatalf("CompileOrderBy: %v", err)
	}
	rev := ob.Reversed()
	if got := rev.Directions; !reflect.DeepEqual(got, []string{"ASC", "DESC", "DESC"}) {
		t.Errorf("reversed directions = %v", got)
	}
	// Reversing must not mutate the original.
	if got := ob.Directions; !reflect.DeepEqual(got, []string{"DESC", "ASC", "ASC"}) {
		t.Errorf("original directions changed: %v", got)
	}
}

func TestOrderByKeyIsStable(t *testing.T) {
	ob, err := CompileOrderBy(testEntity(t, "order"), []request.OrderTerm{
		{Field: "placedAt", Direction: request.Descending},
	})
	if err != nil {
		t.Fatalf("CompileOrderBy: %v", err)
	}
	if got := ob.Key(); got != "placedAt:DESC,id:DESC" {
		t.Errorf("key = %q", got)
	}
}
