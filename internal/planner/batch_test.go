package planner

import (
	"reflect"
	"strings"
	"testing"

	"github.com/MrThearMan/undine-sub001/internal/request"
)

func buildTestPlan(t *testing.T, root *request.Node) *Plan {
	t.Helper()
	plan, err := BuildPlan(testRegistry(t), root, Config{})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	return plan
}

func TestRootQuery(t *testing.T) {
	root := request.Root("order", request.KindConnection, request.Scalar("status"))
	root.Page = &request.PageArgs{First: intp(5)}
	root.Order = []request.OrderTerm{{Field: "placedAt", Direction: request.Descending}}
	root.Filter = request.Compare("status", request.OpEq, "SHIPPED")

	plan := buildTestPlan(t, root)
	q, err := RootQuery(plan.Root)
	if err != nil {
		t.Fatalf("RootQuery: %v", err)
	}
	want := "SELECT `status`, `placed_at`, `id` FROM `orders` WHERE `status` = ? ORDER BY `placed_at` DESC, `id` DESC LIMIT 6"
	if q.SQL != want {
		t.Errorf("sql = %q\nwant %q", q.SQL, want)
	}
	if !reflect.DeepEqual(q.Args, []any{"SHIPPED"}) {
		t.Errorf("args = %v", q.Args)
	}
}

func TestRootQueryOffsetMode(t *testing.T) {
	root := request.Root("order", request.KindConnection, request.Scalar("status"))
	root.Page = &request.PageArgs{Offset: intp(30), First: intp(10)}

	plan := buildTestPlan(t, root)
	q, err := RootQuery(plan.Root)
	if err != nil {
		t.Fatalf("RootQuery: %v", err)
	}
	if !strings.Contains(q.SQL, "LIMIT 11 OFFSET 30") {
		t.Errorf("sql = %q, want LIMIT 11 OFFSET 30", q.SQL)
	}
}

func TestRootQueryBackwardReversesOrdering(t *testing.T) {
	root := request.Root("order", request.KindConnection, request.Scalar("status"))
	root.Page = &request.PageArgs{Last: intp(4)}
	root.Order = []request.OrderTerm{{Field: "placedAt", Direction: request.Descending}}

	plan := buildTestPlan(t, root)
	q, err := RootQuery(plan.Root)
	if err != nil {
		t.Fatalf("RootQuery: %v", err)
	}
	if !strings.Contains(q.SQL, "ORDER BY `placed_at` ASC, `id` ASC LIMIT 5") {
		t.Errorf("sql = %q, want reversed ordering with limit 5", q.SQL)
	}
}

func ordersFetchNode(t *testing.T, page *request.PageArgs) *FetchNode {
	t.Helper()
	orders := request.Relation("orders", request.KindConnection,
		request.Scalar("status"),
	)
	orders.Page = page
	orders.Order = []request.OrderTerm{{Field: "placedAt", Direction: request.Descending}}
	root := request.Root("customer", request.KindConnection, orders)
	return buildTestPlan(t, root).Levels[1][0]
}

func TestToManyBatchQuery(t *testing.T) {
	fn := ordersFetchNode(t, &request.PageArgs{First: intp(2)})
	q, err := ToManyBatchQuery(fn, []any{int64(1), int64(2), int64(3)})
	if err != nil {
		t.Fatalf("ToManyBatchQuery: %v", err)
	}

	for _, fragment := range []string{
		"ROW_NUMBER() OVER (PARTITION BY `customer_id` ORDER BY `placed_at` DESC, `id` DESC) AS __rn",
		"FROM `orders` WHERE `customer_id` IN (?,?,?)",
		") AS __batch WHERE __rn > ? AND __rn <= ?",
		"ORDER BY `customer_id`, __rn",
	} {
		if !strings.Contains(q.SQL, fragment) {
			t.Errorf("sql missing %q\nsql = %q", fragment, q.SQL)
		}
	}
	// Parents first, then the rank window bounds (0, limit+1].
	want := []any{int64(1), int64(2), int64(3), 0, 3}
	if !reflect.DeepEqual(q.Args, want) {
		t.Errorf("args = %v, want %v", q.Args, want)
	}
}

func TestToManyBatchQueryOffsetWindow(t *testing.T) {
	fn := ordersFetchNode(t, &request.PageArgs{Offset: intp(10), First: intp(5)})
	q, err := ToManyBatchQuery(fn, []any{int64(9)})
	if err != nil {
		t.Fatalf("ToManyBatchQuery: %v", err)
	}
	// Rank bounds shift by the offset: (10, 16].
	want := []any{int64(9), 10, 16}
	if !reflect.DeepEqual(q.Args, want) {
		t.Errorf("args = %v, want %v", q.Args, want)
	}
}

func TestToManyBatchQueryRequiresParents(t *testing.T) {
	fn := ordersFetchNode(t, &request.PageArgs{First: intp(2)})
	if _, err := ToManyBatchQuery(fn, nil); err == nil {
		t.Error("empty parent set accepted")
	}
}

func TestToOneBatchQuery(t *testing.T) {
	customer := request.Relation("customer", request.KindObject, request.Scalar("name"))
	root := request.Root("order", request.KindConnection, customer)
	fn := buildTestPlan(t, root).Levels[1][0]

	q, err := ToOneBatchQuery(fn, []any{int64(4), int64(8)})
	if err != nil {
		t.Fatalf("ToOneBatchQuery: %v", err)
	}
	want := "SELECT `name`, `id` FROM `customers` WHERE `id` IN (?,?)"
	if q.SQL != want {
		t.Errorf("sql = %q, want %q", q.SQL, want)
	}
	if strings.Contains(q.SQL, "ROW_NUMBER") {
		t.Error("to-one batch must not window")
	}
}

func TestGroupCountQuery(t *testing.T) {
	fn := ordersFetchNode(t, &request.PageArgs{First: intp(2)})
	q, err := GroupCountQuery(fn, int64(7))
	if err != nil {
		t.Fatalf("GroupCountQuery: %v", err)
	}
	want := "SELECT COUNT(*) FROM `orders` WHERE `customer_id` = ?"
	if q.SQL != want {
		t.Errorf("sql = %q, want %q", q.SQL, want)
	}
	if !reflect.DeepEqual(q.Args, []any{int64(7)}) {
		t.Errorf("args = %v", q.Args)
	}
}
