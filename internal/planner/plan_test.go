package planner

import (
	"errors"
	"testing"

	"github.com/MrThearMan/undine-sub001/internal/request"
)

func customerOrdersItemsTree() *request.Node {
	items := request.Relation("items", request.KindConnection,
		request.Scalar("sku"),
		request.Scalar("quantity"),
	)
	items.Page = &request.PageArgs{First: intp(3)}

	orders := request.Relation("orders", request.KindConnection,
		request.Scalar("status"),
		items,
	)
	orders.Page = &request.PageArgs{First: intp(5)}
	orders.Order = []request.OrderTerm{{Field: "placedAt", Direction: request.Descending}}

	root := request.Root("customer", request.KindConnection,
		request.Scalar("name"),
		orders,
	)
	root.Page = &request.PageArgs{First: intp(10)}
	return root
}

func TestBuildPlanLevels(t *testing.T) {
	plan, err := BuildPlan(testRegistry(t), customerOrdersItemsTree(), Config{})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if plan.Depth() != 3 {
		t.Fatalf("depth = %d, want 3", plan.Depth())
	}
	for lvl, nodes := range plan.Levels {
		if len(nodes) != 1 {
			t.Errorf("level %d has %d nodes, want 1", lvl, len(nodes))
		}
		for _, fn := range nodes {
			if fn.Depth != lvl {
				t.Errorf("node %s depth = %d, want %d", fn.Path, fn.Depth, lvl)
			}
		}
	}
	if got := plan.Levels[1][0].Path; got != "customer.orders" {
		t.Errorf("level 1 path = %q", got)
	}
	if got := plan.Levels[2][0].Path; got != "customer.orders.items" {
		t.Errorf("level 2 path = %q", got)
	}
}

func TestBuildPlanSiblingsShareALevel(t *testing.T) {
	orders := request.Relation("orders", request.KindConnection, request.Scalar("status"))
	orders.Page = &request.PageArgs{First: intp(2)}
	more := request.Relation("orders", request.KindList, request.Scalar("total"))
	more.Name = "recentOrders"
	more.Filter = request.Compare("status", request.OpEq, "NEW")

	root := request.Root("customer", request.KindConnection, request.Scalar("name"), orders, more)
	plan, err := BuildPlan(testRegistry(t), root, Config{})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if plan.Depth() != 2 {
		t.Fatalf("depth = %d, want 2", plan.Depth())
	}
	if len(plan.Levels[1]) != 2 {
		t.Errorf("level 1 has %d nodes, want 2 siblings", len(plan.Levels[1]))
	}
}

func TestBuildPlanColumnsIncludeSupportFields(t *testing.T) {
	plan, err := BuildPlan(testRegistry(t), customerOrdersItemsTree(), Config{})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}

	names := func(fn *FetchNode) map[string]bool {
		out := make(map[string]bool)
		for _, f := range fn.Columns {
			out[f.Name] = true
		}
		return out
	}

	root := names(plan.Root)
	// Requested scalar, key, and the local join field for orders.
	for _, want := range []string{"name", "id"} {
		if !root[want] {
			t.Errorf("root columns missing %q", want)
		}
	}

	ordersNode := names(plan.Levels[1][0])
	// status requested; placed_at needed for ordering cursors; id key;
	// customerId is the remote join field.
	for _, want := range []string{"status", "placedAt", "id", "customerId"} {
		if !ordersNode[want] {
			t.Errorf("orders columns missing %q", want)
		}
	}
}

func TestBuildPlanToOneRelation(t *testing.T) {
	customer := request.Relation("customer", request.KindObject, request.Scalar("name"))
	root := request.Root("order", request.KindConnection, request.Scalar("status"), customer)

	plan, err := BuildPlan(testRegistry(t), root, Config{})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	child := plan.Levels[1][0]
	if child.Window != nil || child.OrderBy != nil {
		t.Error("to-one node has pagination state")
	}
	if child.Link.LocalField.Name != "customerId" || child.Link.RemoteField.Name != "id" {
		t.Errorf("link = %s -> %s", child.Link.LocalField.Name, child.Link.RemoteField.Name)
	}
}

func TestBuildPlanToOneWithPageArgsRejected(t *testing.T) {
	customer := request.Relation("customer", request.KindObject, request.Scalar("name"))
	customer.Page = &request.PageArgs{First: intp(1)}
	root := request.Root("order", request.KindConnection, customer)

	_, err := BuildPlan(testRegistry(t), root, Config{})
	var conflict *PaginationConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want PaginationConflictError", err)
	}
	var pe *PlanError
	if !errors.As(err, &pe) || pe.Path != "order.customer" {
		t.Errorf("err = %v, want path order.customer", err)
	}
}

func TestBuildPlanUnknownSelection(t *testing.T) {
	root := request.Root("customer", request.KindConnection, request.Scalar("emailAddress"))
	_, err := BuildPlan(testRegistry(t), root, Config{})
	var unknown *UnknownFieldError
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v, want UnknownFieldError", err)
	}
}

func TestBuildPlanCycleDetection(t *testing.T) {
	// customer -> orders -> customer -> orders with identical arguments
	// on both orders selections recurses without narrowing.
	innerOrders := request.Relation("orders", request.KindConnection, request.Scalar("status"))
	innerCustomer := request.Relation("customer", request.KindObject, innerOrders)
	orders := request.Relation("orders", request.KindConnection, request.Scalar("status"), innerCustomer)
	root := request.Root("customer", request.KindConnection, orders)

	_, err := BuildPlan(testRegistry(t), root, Config{})
	var cyclic *CyclicSelectionError
	if !errors.As(err, &cyclic) {
		t.Fatalf("err = %v, want CyclicSelectionError", err)
	}
}

func TestBuildPlanRepeatedEntityWithNarrowedArgsAllowed(t *testing.T) {
	innerOrders := request.Relation("orders", request.KindConnection, request.Scalar("status"))
	innerOrders.Filter = request.Compare("status", request.OpEq, "NEW")
	innerCustomer := request.Relation("customer", request.KindObject, innerOrders)
	orders := request.Relation("orders", request.KindConnection, request.Scalar("status"), innerCustomer)
	root := request.Root("customer", request.KindConnection, orders)

	if _, err := BuildPlan(testRegistry(t), root, Config{}); err != nil {
		t.Fatalf("narrowed recursion rejected: %v", err)
	}
}

func TestBuildPlanDepthLimit(t *testing.T) {
	_, err := BuildPlan(testRegistry(t), customerOrdersItemsTree(), Config{MaxDepth: 2})
	var deep *DepthExceededError
	if !errors.As(err, &deep) {
		t.Fatalf("err = %v, want DepthExceededError", err)
	}
	if deep.Depth != 3 || deep.Max != 2 {
		t.Errorf("error = %+v", deep)
	}
}

func TestBuildPlanEstimatedCostLimit(t *testing.T) {
	_, err := BuildPlan(testRegistry(t), customerOrdersItemsTree(), Config{MaxEstimatedRows: 50})
	if err == nil {
		t.Fatal("expected estimated cost rejection")
	}
}

func TestBuildPlanPerNodeHandlerOverride(t *testing.T) {
	override := NewDefaultPagination(Limits{DefaultPageSize: 2, MaxPageSize: 2})
	orders := request.Relation("orders", request.KindConnection, request.Scalar("status"))
	root := request.Root("customer", request.KindConnection, orders)

	plan, err := BuildPlan(testRegistry(t), root, Config{
		Handlers: map[string]PaginationHandler{"customer.orders": override},
	})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if got := plan.Levels[1][0].Window.Limit; got != 2 {
		t.Errorf("overridden default limit = %d, want 2", got)
	}
	if plan.Root.Window.Limit != 20 {
		t.Errorf("root limit = %d, want engine default 20", plan.Root.Window.Limit)
	}
}

func TestBuildPlanRootValidation(t *testing.T) {
	if _, err := BuildPlan(testRegistry(t), nil, Config{}); err == nil {
		t.Error("nil tree accepted")
	}
	if _, err := BuildPlan(testRegistry(t), request.Root("invoice", request.KindConnection), Config{}); err == nil {
		t.Error("unknown entity accepted")
	}
	bad := request.Root("customer", request.KindObject)
	if _, err := BuildPlan(testRegistry(t), bad, Config{}); err == nil {
		t.Error("non-collection root accepted")
	}
}
