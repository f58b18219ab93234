package engine

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/MrThearMan/undine-sub001/internal/dbexec"
	"github.com/MrThearMan/undine-sub001/internal/executor"
	"github.com/MrThearMan/undine-sub001/internal/planner"
	"github.com/MrThearMan/undine-sub001/internal/request"
	"github.com/MrThearMan/undine-sub001/internal/schema"
)

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
			},
		},
	})
	require.NoError(t, err)
	return reg
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	eng := New(testRegistry(t), dbexec.NewStandardExecutor(db), Config{Concurrency: 1}, opts...)
	return eng, mock
}

func intp(v int) *int { return &v }

func TestExecuteEndToEnd(t *testing.T) {
	eng, mock := newTestEngine(t)
	mock.ExpectQuery("FROM `customers`").
		WillReturnRows(sqlmock.NewRows([]string{"name", "id"}).AddRow("Ada", int64(1)))
	mock.ExpectQuery("FROM `orders`").
		WillReturnRows(sqlmock.NewRows([]string{"status", "id", "customer_id"}).
			AddRow("NEW", int64(10), int64(1)))

	orders := request.Relation("orders", request.KindConnection, request.Scalar("status"))
	orders.Page = &request.PageArgs{First: intp(5)}
	root := request.Root("customer", request.KindConnection, request.Scalar("name"), orders)
	root.Page = &request.PageArgs{First: intp(5)}

	result, err := eng.Execute(context.Background(), root)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	nodes, _ := result.(*executor.Object).Get("nodes")
	require.Len(t, nodes.([]any), 1)
}

// A planning failure must reject the request before anything reaches the
// backend.
func TestExecutePlanningFailureIssuesNoStatements(t *testing.T) {
	eng, mock := newTestEngine(t)

	root := request.Root("customer", request.KindConnection, request.Scalar("name"))
	root.Page = &request.PageArgs{First: intp(1), Last: intp(1)}

	_, err := eng.Execute(context.Background(), root)
	var conflict *planner.PaginationConflictError
	require.ErrorAs(t, err, &conflict)
	require.NoError(t, mock.ExpectationsWereMet(), "conflicting arguments must not touch the backend")
}

func TestExecutePageSizeRejectedNotClamped(t *testing.T) {
	eng, mock := newTestEngine(t)

	root := request.Root("customer", request.KindConnection, request.Scalar("name"))
	root.Page = &request.PageArgs{First: intp(10_000)}

	_, err := eng.Execute(context.Background(), root)
	var exceeded *planner.PageSizeExceededError
	require.ErrorAs(t, err, &exceeded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteWithPaginationHandlerOverride(t *testing.T) {
	override := planner.NewDefaultPagination(planner.Limits{DefaultPageSize: 1, MaxPageSize: 1})
	eng, mock := newTestEngine(t, WithPaginationHandler("customer", override))

	// Overridden default page size of 1 turns into LIMIT 2 with the
	// over-fetch row.
	mock.ExpectQuery("FROM `customers` ORDER BY `id` ASC LIMIT 2").
		WillReturnRows(sqlmock.NewRows([]string{"name", "id"}).AddRow("Ada", int64(1)))

	root := request.Root("customer", request.KindConnection, request.Scalar("name"))
	_, err := eng.Execute(context.Background(), root)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
