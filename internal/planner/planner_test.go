package planner

import (
	"testing"

	"github.com/MrThearMan/undine-sub001/internal/schema"
)

// testRegistry builds the customer -> order -> item schema the planner
// tests share.
func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.BuildRegistry([]schema.Definition{
		{
			Name:  "customer",
			Table: "customers",
			Key:   "id",
			Fields: []schema.FieldDefinition{
				{Name: "id", Type: "int", Unique: true},
				{Name: "name", Type: "string"},
				{Name: "tier", Type: "string"},
				{Name: "signupDate", Column: "signup_date", Type: "time", Nullable: true},
			},
			Relations: []schema.RelationDefinition{
				{Name: "orders", Target: "order", Kind: "to_many", LocalField: "id", RemoteField: "customerId"},
			},
		},
		{
			Name:  "order",
			Table: "orders",
			Key:   "id",
			Fields: []schema.FieldDefinition{
				{Name: "id", Type: "int", Unique: true},
				{Name: "customerId", Column: "customer_id", Type: "int"},
				{Name: "status", Type: "string"},
				{Name: "total", Type: "float"},
				{Name: "placedAt", Column: "placed_at", Type: "time"},
			},
			Relations: []schema.RelationDefinition{
				{Name: "customer", Target: "customer", Kind: "to_one", LocalField: "customerId", RemoteField: "id"},
				{Name: "items", Target: "item", Kind: "to_many", LocalField: "id", RemoteField: "orderId"},
			},
		},
		{
			Name:  "item",
			Table: "order_items",
			Key:   "id",
			Fields: []schema.FieldDefinition{
				{Name: "id", Type: "int", Unique: true},
				{Name: "orderId", Column: "order_id", Type: "int"},
				{Name: "sku", Type: "string"},
				{Name: "quantity", Type: "int"},
			},
		},
	})
	if err != nil {
		t.Fatalf("build test registry: %v", err)
	}
	return reg
}

func testEntity(t *testing.T, name string) *schema.Entity {
	t.Helper()
	e, ok := testRegistry(t).Entity(name)
	if !ok {
		t.Fatalf("entity %q not in test registry", name)
	}
	return e
}

func intp(v int) *int { return &v }
