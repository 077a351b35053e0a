// cmd/oracle-mcp-server/tools_test.go
package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/askdba/oracle-mcp-server/internal/approval"
	"github.com/askdba/oracle-mcp-server/internal/audit"
	"github.com/askdba/oracle-mcp-server/internal/circuit"
	"github.com/askdba/oracle-mcp-server/internal/config"
	"github.com/askdba/oracle-mcp-server/internal/gateway"
	"github.com/askdba/oracle-mcp-server/internal/pool"
	"github.com/askdba/oracle-mcp-server/internal/ratelimit"
	"github.com/askdba/oracle-mcp-server/internal/util"
)

// setupGateway points the package-level wiring at a sqlmock-backed pipeline.
func setupGateway(t *testing.T, rateMax int) sqlmock.Sqlmock {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}

	p, err := pool.New(context.Background(), db, pool.Config{
		Size:           1,
		AcquireTimeout: time.Second,
		QueryTimeout:   time.Second,
	})
	if err != nil {
		t.Fatalf("pool.New() error = %v", err)
	}

	em := audit.NewWriter(io.Discard, 16)

	cfg = config.Defaults()
	gw = gateway.New(
		util.NewValidator(util.DefaultMaxComplexity, util.DefaultMaxRows, false),
		ratelimit.New(rateMax, time.Minute),
		approval.New(5*time.Minute),
		circuit.New(5, time.Minute, 2),
		p,
		em,
	)

	t.Cleanup(func() {
		em.Close()
		p.Close()
		db.Close()
		gw = nil
		cfg = nil
	})
	return mock
}

func TestToolPreviewThenQuery(t *testing.T) {
	mock := setupGateway(t, 100)

	_, prev, err := toolPreviewQuery(context.Background(), nil, PreviewQueryInput{SQL: "SELECT * FROM DUAL"})
	if err != nil {
		t.Fatalf("preview error = %v", err)
	}
	if !prev.Admitted || prev.ApprovalToken == "" {
		t.Fatalf("preview = %+v, want admitted with token", prev)
	}
	if prev.ExpiresAt == "" {
		t.Error("ExpiresAt not set on admitted preview")
	}
	if _, perr := time.Parse(time.RFC3339, prev.ExpiresAt); perr != nil {
		t.Errorf("ExpiresAt %q is not RFC3339: %v", prev.ExpiresAt, perr)
	}

	mock.ExpectQuery("ROWNUM").WillReturnRows(
		sqlmock.NewRows([]string{"DUMMY"}).AddRow("X"))

	_, res, err := toolQueryOracle(context.Background(), nil, QueryOracleInput{
		SQL:           "SELECT * FROM DUAL",
		ApprovalToken: prev.ApprovalToken,
	})
	if err != nil {
		t.Fatalf("query error = %v", err)
	}
	if res.RowCount != 1 || len(res.Columns) != 1 || res.Columns[0] != "DUMMY" {
		t.Errorf("result = %+v", res)
	}
	if res.Rows[0]["DUMMY"] != "X" {
		t.Errorf("row value = %v", res.Rows[0]["DUMMY"])
	}
}

func TestToolPreviewRejectsWrite(t *testing.T) {
	setupGateway(t, 100)

	_, prev, err := toolPreviewQuery(context.Background(), nil, PreviewQueryInput{SQL: "DELETE FROM ORDERS"})
	if err != nil {
		t.Fatalf("preview error = %v", err)
	}
	if prev.Admitted || prev.ApprovalToken != "" {
		t.Errorf("preview = %+v, want rejection without token", prev)
	}
	if prev.Reason == "" {
		t.Error("rejection carries no reason")
	}
}

func TestToolQueryRequiresSQL(t *testing.T) {
	setupGateway(t, 100)

	_, _, err := toolQueryOracle(context.Background(), nil, QueryOracleInput{SQL: "   "})
	if err == nil {
		t.Fatal("empty sql accepted")
	}
}

func TestToolQueryWithoutToken(t *testing.T) {
	setupGateway(t, 100)

	_, _, err := toolQueryOracle(context.Background(), nil, QueryOracleInput{SQL: "SELECT * FROM DUAL"})
	var gerr *gateway.Error
	if !errors.As(err, &gerr) || gerr.Kind != gateway.KindApprovalRequired {
		t.Fatalf("err = %v, want approval_required", err)
	}
}

func TestToolDescribeTable(t *testing.T) {
	mock := setupGateway(t, 100)

	mock.ExpectQuery("user_tab_columns").WithArgs("EMPLOYEES").WillReturnRows(
		sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "DATA_LENGTH", "DATA_PRECISION", "DATA_SCALE", "NULLABLE", "DATA_DEFAULT"}).
			AddRow("ID", "NUMBER", 22, 10, 0, "N", nil).
			AddRow("NAME", "VARCHAR2", 100, nil, nil, "Y", nil))
	mock.ExpectQuery("user_cons_columns").WithArgs("EMPLOYEES").WillReturnRows(
		sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("ID"))

	_, out, err := toolDescribeTable(context.Background(), nil, DescribeTableInput{Table: "employees"})
	if err != nil {
		t.Fatalf("describe error = %v", err)
	}
	if out.Table != "EMPLOYEES" || out.Schema != "" || len(out.Columns) != 2 {
		t.Fatalf("output = %+v", out)
	}
	if !out.Columns[0].PrimaryKey || out.Columns[0].Nullable {
		t.Errorf("ID column = %+v, want primary key, not nullable", out.Columns[0])
	}
	if out.Columns[1].PrimaryKey || !out.Columns[1].Nullable {
		t.Errorf("NAME column = %+v, want nullable non-key", out.Columns[1])
	}
}

func TestToolDescribeTableInSchema(t *testing.T) {
	mock := setupGateway(t, 100)

	mock.ExpectQuery("all_tab_columns").WithArgs("HR", "EMPLOYEES").WillReturnRows(
		sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "DATA_LENGTH", "DATA_PRECISION", "DATA_SCALE", "NULLABLE", "DATA_DEFAULT"}).
			AddRow("ID", "NUMBER", 22, 10, 0, "N", nil))
	mock.ExpectQuery("all_cons_columns").WithArgs("HR", "EMPLOYEES").WillReturnRows(
		sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("ID"))

	_, out, err := toolDescribeTable(context.Background(), nil, DescribeTableInput{Table: "employees", Schema: "hr"})
	if err != nil {
		t.Fatalf("describe error = %v", err)
	}
	if out.Table != "EMPLOYEES" || out.Schema != "HR" || len(out.Columns) != 1 {
		t.Fatalf("output = %+v", out)
	}
}

func TestToolDescribeTableBadIdentifier(t *testing.T) {
	setupGateway(t, 100)

	_, _, err := toolDescribeTable(context.Background(), nil, DescribeTableInput{Table: "emp;drop"})
	var gerr *gateway.Error
	if !errors.As(err, &gerr) || gerr.Kind != gateway.KindBadIdentifier {
		t.Fatalf("err = %v, want bad_identifier", err)
	}
}

func TestToolListTables(t *testing.T) {
	mock := setupGateway(t, 100)

	mock.ExpectQuery("user_tables").WillReturnRows(
		sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("DEPARTMENTS").AddRow("EMPLOYEES"))

	_, out, err := toolListTables(context.Background(), nil, ListTablesInput{})
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	if out.Count != 2 || out.Tables[0] != "DEPARTMENTS" || out.Schema != "" {
		t.Errorf("output = %+v", out)
	}
}

func TestToolListTablesInSchema(t *testing.T) {
	mock := setupGateway(t, 100)

	mock.ExpectQuery("all_tables").WithArgs("HR").WillReturnRows(
		sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("EMPLOYEES"))

	_, out, err := toolListTables(context.Background(), nil, ListTablesInput{Schema: "hr"})
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	if out.Count != 1 || out.Tables[0] != "EMPLOYEES" || out.Schema != "HR" {
		t.Errorf("output = %+v", out)
	}
}

func TestToolListTablesBadSchema(t *testing.T) {
	setupGateway(t, 100)

	_, _, err := toolListTables(context.Background(), nil, ListTablesInput{Schema: "hr;drop"})
	var gerr *gateway.Error
	if !errors.As(err, &gerr) || gerr.Kind != gateway.KindBadIdentifier {
		t.Fatalf("err = %v, want bad_identifier", err)
	}
}

func TestToolPing(t *testing.T) {
	mock := setupGateway(t, 100)

	mock.ExpectQuery("SELECT 1 FROM DUAL").WillReturnRows(
		sqlmock.NewRows([]string{"1"}).AddRow(1))

	_, out, err := toolPing(context.Background(), nil, PingInput{})
	if err != nil {
		t.Fatalf("ping error = %v", err)
	}
	if !out.Success || out.Message != "pong" {
		t.Errorf("output = %+v", out)
	}
}

func TestToolGatewayStatus(t *testing.T) {
	setupGateway(t, 100)

	_, out, err := toolGatewayStatus(context.Background(), nil, GatewayStatusInput{})
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	if out.Pool.Total != 1 || !out.Pool.AllHealthy {
		t.Errorf("pool = %+v", out.Pool)
	}
	if out.Circuit.State != "CLOSED" {
		t.Errorf("circuit state = %q", out.Circuit.State)
	}
	if out.RateLimit.Max != 100 || out.PendingApprovals != 0 {
		t.Errorf("rate = %+v, pending = %d", out.RateLimit, out.PendingApprovals)
	}
}
