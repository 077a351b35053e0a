// internal/gateway/dispatcher.go

// Package gateway orders the admission pipeline in front of the database:
// rate limiter, approval registry, validator, circuit breaker, session pool.
// Every decision it makes lands in the audit stream.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/askdba/oracle-mcp-server/internal/approval"
	"github.com/askdba/oracle-mcp-server/internal/audit"
	"github.com/askdba/oracle-mcp-server/internal/circuit"
	"github.com/askdba/oracle-mcp-server/internal/pool"
	"github.com/askdba/oracle-mcp-server/internal/ratelimit"
	"github.com/askdba/oracle-mcp-server/internal/util"
)

// Operation names as they appear in audit records.
const (
	OpPreview  = "preview_query"
	OpExecute  = "query_oracle"
	OpDescribe = "describe_table"
	OpList     = "list_tables"
)

// Metadata queries come in two flavors: the user_* views for the connected
// user's own objects and the all_* views with an owner predicate when a
// schema is named. The owner filter is mandatory on all_* or a table name
// visible in several schemas would return interleaved rows.
const (
	describeColumnsSQL = `SELECT column_name, data_type, data_length, data_precision, data_scale, nullable, data_default
FROM user_tab_columns WHERE table_name = :1 ORDER BY column_id`

	describeColumnsInSchemaSQL = `SELECT column_name, data_type, data_length, data_precision, data_scale, nullable, data_default
FROM all_tab_columns WHERE owner = :1 AND table_name = :2 ORDER BY column_id`

	describePrimaryKeySQL = `SELECT cols.column_name
FROM user_cons_columns cols
JOIN user_constraints cons ON cols.constraint_name = cons.constraint_name
WHERE cons.constraint_type = 'P' AND cols.table_name = :1
ORDER BY cols.position`

	describePrimaryKeyInSchemaSQL = `SELECT cols.column_name
FROM all_cons_columns cols
JOIN all_constraints cons ON cols.constraint_name = cons.constraint_name AND cols.owner = cons.owner
WHERE cons.constraint_type = 'P' AND cols.owner = :1 AND cols.table_name = :2
ORDER BY cols.position`

	listTablesSQL         = `SELECT table_name FROM user_tables ORDER BY table_name`
	listTablesInSchemaSQL = `SELECT table_name FROM all_tables WHERE owner = :1 ORDER BY table_name`
)

// auditTokenLen is how much of an approval token audit records keep.
const auditTokenLen = 8

// Dispatcher owns the pipeline singletons and exposes the four operations.
type Dispatcher struct {
	Validator *util.Validator
	Limiter   *ratelimit.Limiter
	Approvals *approval.Registry
	Breaker   *circuit.Breaker
	Pool      *pool.Pool
	Audit     *audit.Emitter
}

// New wires the pipeline together and hooks circuit transitions into the
// audit stream.
func New(v *util.Validator, l *ratelimit.Limiter, a *approval.Registry, b *circuit.Breaker, p *pool.Pool, em *audit.Emitter) *Dispatcher {
	d := &Dispatcher{
		Validator: v,
		Limiter:   l,
		Approvals: a,
		Breaker:   b,
		Pool:      p,
		Audit:     em,
	}
	b.OnChange = func(from, to circuit.State) {
		kind := audit.KindCircuitClose
		switch to {
		case circuit.Open:
			kind = audit.KindCircuitOpen
		case circuit.HalfOpen:
			kind = audit.KindCircuitHalfOpen
		}
		em.Emit(audit.Event{Kind: kind, Reason: from.String() + " -> " + to.String()})
	}
	return d
}

// Preview is the result of validating a statement without running it. A
// token is present exactly when the statement was admitted.
type Preview struct {
	Admitted      bool      `json:"admitted"`
	Reason        string    `json:"reason,omitempty"`
	Warnings      []string  `json:"warnings"`
	Complexity    int       `json:"complexity"`
	AppliedRowCap int       `json:"applied_row_cap,omitempty"`
	EffectiveSQL  string    `json:"effective_sql,omitempty"`
	ApprovalToken string    `json:"approval_token,omitempty"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
}

// PreviewQuery validates sqlText and, when admitted, issues a one-shot
// approval token bound to the statement. Nothing touches the database.
func (d *Dispatcher) PreviewQuery(sqlText string) (*Preview, error) {
	reqID := uuid.NewString()

	// ATTEMPT opens every request's audit trail, whatever the outcome.
	d.Audit.Emit(audit.Event{Kind: audit.KindAttempt, Op: OpPreview, RequestID: reqID, Query: util.TruncateQuery(sqlText, 200)})

	if err := d.admitRate(OpPreview, reqID); err != nil {
		return nil, err
	}

	verdict := d.Validator.Validate(sqlText)
	if !verdict.Admitted {
		d.Audit.Emit(audit.Event{
			Kind:      audit.KindBlock,
			Op:        OpPreview,
			RequestID: reqID,
			Query:     util.TruncateQuery(sqlText, 200),
			Reason:    verdict.Reason,
		})
		return &Preview{Reason: verdict.Reason, Warnings: verdict.Warnings, Complexity: verdict.Complexity}, nil
	}

	token, expiresAt, err := d.Approvals.Issue(util.CanonicalHash(sqlText))
	if err != nil {
		return nil, errf(KindDriverError, "issue approval token: %v", err)
	}

	d.Audit.Emit(audit.Event{
		Kind:       audit.KindApprovalIssue,
		Op:         OpPreview,
		RequestID:  reqID,
		Query:      util.TruncateQuery(sqlText, 200),
		Complexity: verdict.Complexity,
		TokenID:    token[:auditTokenLen],
	})

	return &Preview{
		Admitted:      true,
		Warnings:      verdict.Warnings,
		Complexity:    verdict.Complexity,
		AppliedRowCap: verdict.AppliedRowCap,
		EffectiveSQL:  verdict.EffectiveSQL,
		ApprovalToken: token,
		ExpiresAt:     expiresAt,
	}, nil
}

// Execution is the outcome of a successfully executed statement.
type Execution struct {
	Result     *pool.Result `json:"result"`
	Complexity int          `json:"complexity"`
	Warnings   []string     `json:"warnings"`
	Slot       int          `json:"slot"`
	DurationMs int64        `json:"duration_ms"`
}

// ExecuteQuery runs a previously approved statement: the token must have
// been issued for this exact statement (up to formatting) and is spent by
// this attempt whatever the outcome.
func (d *Dispatcher) ExecuteQuery(ctx context.Context, sqlText, token string) (*Execution, error) {
	reqID := uuid.NewString()
	truncated := util.TruncateQuery(sqlText, 200)

	d.Audit.Emit(audit.Event{Kind: audit.KindAttempt, Op: OpExecute, RequestID: reqID, Query: truncated})

	if err := d.admitRate(OpExecute, reqID); err != nil {
		return nil, err
	}

	if token == "" {
		d.Audit.Emit(audit.Event{Kind: audit.KindApprovalReject, Op: OpExecute, RequestID: reqID, Query: truncated, Reason: "no approval token"})
		return nil, errf(KindApprovalRequired, "run preview_query first and pass its approval token")
	}

	if err := d.Approvals.Consume(token, util.CanonicalHash(sqlText)); err != nil {
		d.Audit.Emit(audit.Event{
			Kind:      audit.KindApprovalReject,
			Op:        OpExecute,
			RequestID: reqID,
			Query:     truncated,
			Reason:    err.Error(),
			TokenID:   tokenID(token),
		})
		switch {
		case errors.Is(err, approval.ErrExpired):
			return nil, errf(KindApprovalExpired, "%v", err)
		case errors.Is(err, approval.ErrMismatch):
			return nil, errf(KindApprovalMismatch, "%v", err)
		default:
			return nil, errf(KindApprovalInvalid, "%v", err)
		}
	}
	d.Audit.Emit(audit.Event{Kind: audit.KindApprovalConsume, Op: OpExecute, RequestID: reqID, TokenID: tokenID(token)})

	// Approval binds to the canonical form, not the verdict, so the
	// statement is re-validated under the current limits.
	verdict := d.Validator.Validate(sqlText)
	if !verdict.Admitted {
		d.Audit.Emit(audit.Event{Kind: audit.KindBlock, Op: OpExecute, RequestID: reqID, Query: truncated, Reason: verdict.Reason})
		return nil, errf(KindValidationRejected, "%s", verdict.Reason)
	}

	res, slot, err := d.runGuarded(ctx, OpExecute, reqID, verdict.EffectiveSQL)
	if err != nil {
		return nil, err
	}

	return &Execution{
		Result:     res.result,
		Complexity: verdict.Complexity,
		Warnings:   verdict.Warnings,
		Slot:       slot,
		DurationMs: res.durationMs,
	}, nil
}

// Column describes one column of a table.
type Column struct {
	Name       string `json:"name"`
	DataType   string `json:"data_type"`
	Length     any    `json:"length,omitempty"`
	Precision  any    `json:"precision,omitempty"`
	Scale      any    `json:"scale,omitempty"`
	Nullable   bool   `json:"nullable"`
	Default    any    `json:"default,omitempty"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
}

// TableInfo is the describe_table result. Schema is set only when the caller
// named one.
type TableInfo struct {
	Table   string   `json:"table"`
	Schema  string   `json:"schema,omitempty"`
	Columns []Column `json:"columns"`
}

// DescribeTable returns column metadata for a table, with primary-key columns
// marked. An empty schema means the connected user's own objects; a named
// schema is identifier-checked and bound as the owner filter.
func (d *Dispatcher) DescribeTable(ctx context.Context, table, schema string) (*TableInfo, error) {
	reqID := uuid.NewString()

	d.Audit.Emit(audit.Event{Kind: audit.KindAttempt, Op: OpDescribe, RequestID: reqID, Query: util.TruncateQuery(table, 200)})

	// Rate limit before the identifier check so malformed requests still
	// consume window slots.
	if err := d.admitRate(OpDescribe, reqID); err != nil {
		return nil, err
	}

	name, owner, err := d.checkIdents(OpDescribe, reqID, table, schema)
	if err != nil {
		return nil, err
	}

	colsSQL, pksSQL := describeColumnsSQL, describePrimaryKeySQL
	args := []any{name}
	if owner != "" {
		colsSQL, pksSQL = describeColumnsInSchemaSQL, describePrimaryKeyInSchemaSQL
		args = []any{owner, name}
	}

	cols, _, err := d.runGuarded(ctx, OpDescribe, reqID, colsSQL, args...)
	if err != nil {
		return nil, err
	}

	pks, _, err := d.runGuarded(ctx, OpDescribe, reqID, pksSQL, args...)
	if err != nil {
		return nil, err
	}
	pkSet := map[string]bool{}
	for _, row := range pks.result.Rows {
		if v, ok := row["COLUMN_NAME"].(string); ok {
			pkSet[v] = true
		}
	}

	info := &TableInfo{Table: name, Schema: owner, Columns: make([]Column, 0, len(cols.result.Rows))}
	for _, row := range cols.result.Rows {
		colName, _ := row["COLUMN_NAME"].(string)
		dataType, _ := row["DATA_TYPE"].(string)
		nullable, _ := row["NULLABLE"].(string)
		info.Columns = append(info.Columns, Column{
			Name:       colName,
			DataType:   dataType,
			Length:     row["DATA_LENGTH"],
			Precision:  row["DATA_PRECISION"],
			Scale:      row["DATA_SCALE"],
			Nullable:   nullable == "Y",
			Default:    row["DATA_DEFAULT"],
			PrimaryKey: pkSet[colName],
		})
	}
	return info, nil
}

// ListTables returns the tables owned by the connected user, or by the named
// schema when one is given.
func (d *Dispatcher) ListTables(ctx context.Context, schema string) ([]string, error) {
	reqID := uuid.NewString()

	d.Audit.Emit(audit.Event{Kind: audit.KindAttempt, Op: OpList, RequestID: reqID, Query: schema})

	if err := d.admitRate(OpList, reqID); err != nil {
		return nil, err
	}

	sqlText := listTablesSQL
	var args []any
	if schema != "" {
		owner, err := util.UpperIdent(schema)
		if err != nil {
			d.Audit.Emit(audit.Event{Kind: audit.KindBlock, Op: OpList, RequestID: reqID, Reason: err.Error()})
			return nil, errf(KindBadIdentifier, "schema: %v", err)
		}
		sqlText = listTablesInSchemaSQL
		args = []any{owner}
	}

	res, _, err := d.runGuarded(ctx, OpList, reqID, sqlText, args...)
	if err != nil {
		return nil, err
	}

	tables := make([]string, 0, len(res.result.Rows))
	for _, row := range res.result.Rows {
		if v, ok := row["TABLE_NAME"].(string); ok {
			tables = append(tables, v)
		}
	}
	return tables, nil
}

// Status is the gateway_status view.
type Status struct {
	Pool             pool.Health      `json:"pool"`
	Circuit          circuit.Snapshot `json:"circuit"`
	PendingApprovals int              `json:"pending_approvals"`
	RateLimit        ratelimit.Stats  `json:"rate_limit"`
}

// Status reports the health of every guard without touching the database.
func (d *Dispatcher) Status() *Status {
	return &Status{
		Pool:             d.Pool.Health(),
		Circuit:          d.Breaker.Snapshot(),
		PendingApprovals: d.Approvals.Pending(),
		RateLimit:        d.Limiter.Stats(),
	}
}

// Ping runs the liveness round-trip through the guarded path so a dead
// database trips the breaker the same way queries do.
func (d *Dispatcher) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	_, _, err := d.runGuarded(ctx, "ping", uuid.NewString(), "SELECT 1 FROM DUAL")
	if err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

type runOutcome struct {
	result     *pool.Result
	durationMs int64
}

// runGuarded sends one statement through the circuit breaker and the pool,
// feeding the outcome back into the breaker and the audit stream.
func (d *Dispatcher) runGuarded(ctx context.Context, op, reqID, sqlText string, args ...any) (*runOutcome, int, error) {
	if ok, retryAfter := d.Breaker.Permit(); !ok {
		d.Audit.Emit(audit.Event{Kind: audit.KindFailure, Op: op, RequestID: reqID, Reason: "circuit open", Phase: "circuit"})
		return nil, -1, &Error{
			Kind:       KindCircuitOpen,
			Reason:     "database is unavailable, backing off",
			RetryAfter: retryAfter,
		}
	}

	start := time.Now()
	res, slot, err := d.Pool.Run(ctx, sqlText, args...)
	durationMs := time.Since(start).Milliseconds()

	if err != nil {
		if errors.Is(err, pool.ErrAcquireTimeout) {
			// Not a database failure; the breaker never saw the statement.
			d.Audit.Emit(audit.Event{Kind: audit.KindFailure, Op: op, RequestID: reqID, Reason: err.Error(), Phase: "acquire"})
			return nil, slot, errf(KindPoolTimeout, "%v", err)
		}
		d.Breaker.RecordFailure()
		d.Audit.Emit(audit.Event{
			Kind:       audit.KindFailure,
			Op:         op,
			RequestID:  reqID,
			Reason:     err.Error(),
			Phase:      "execute",
			Slot:       audit.SlotRef(slot),
			DurationMs: durationMs,
		})
		return nil, slot, errf(KindDriverError, "%v", err)
	}

	d.Breaker.RecordSuccess()
	d.Audit.Emit(audit.Event{
		Kind:       audit.KindSuccess,
		Op:         op,
		RequestID:  reqID,
		Rows:       res.Count,
		Slot:       audit.SlotRef(slot),
		DurationMs: durationMs,
	})
	return &runOutcome{result: res, durationMs: durationMs}, slot, nil
}

// admitRate charges one request against the shared window.
func (d *Dispatcher) admitRate(op, reqID string) error {
	ok, retryAfter := d.Limiter.Allow()
	if ok {
		return nil
	}
	d.Audit.Emit(audit.Event{Kind: audit.KindRateLimit, Op: op, RequestID: reqID})
	return &Error{
		Kind:       KindRateLimited,
		Reason:     "rate limit exceeded",
		RetryAfter: retryAfter,
	}
}

// checkIdents validates the table name and the optional schema, returning
// their uppercase forms. owner is empty when no schema was given.
func (d *Dispatcher) checkIdents(op, reqID, table, schema string) (name, owner string, err error) {
	name, err = util.UpperIdent(table)
	if err != nil {
		d.Audit.Emit(audit.Event{Kind: audit.KindBlock, Op: op, RequestID: reqID, Reason: err.Error()})
		return "", "", errf(KindBadIdentifier, "%v", err)
	}
	if schema != "" {
		owner, err = util.UpperIdent(schema)
		if err != nil {
			d.Audit.Emit(audit.Event{Kind: audit.KindBlock, Op: op, RequestID: reqID, Reason: err.Error()})
			return "", "", errf(KindBadIdentifier, "schema: %v", err)
		}
	}
	return name, owner, nil
}

func tokenID(token string) string {
	if len(token) <= auditTokenLen {
		return token
	}
	return token[:auditTokenLen]
}
