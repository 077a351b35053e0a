// cmd/oracle-mcp-server/tools.go
package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/askdba/oracle-mcp-server/internal/util"
)

// ===== Tool handlers =====

func toolPreviewQuery(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input PreviewQueryInput,
) (*mcp.CallToolResult, PreviewQueryOutput, error) {

	sqlText := strings.TrimSpace(input.SQL)
	if sqlText == "" {
		return nil, PreviewQueryOutput{}, fmt.Errorf("sql is required")
	}

	prev, err := gw.PreviewQuery(sqlText)
	if err != nil {
		return nil, PreviewQueryOutput{}, err
	}

	out := PreviewQueryOutput{
		Admitted:      prev.Admitted,
		Reason:        prev.Reason,
		Warnings:      prev.Warnings,
		Complexity:    prev.Complexity,
		AppliedRowCap: prev.AppliedRowCap,
		EffectiveSQL:  prev.EffectiveSQL,
		ApprovalToken: prev.ApprovalToken,
	}
	if !prev.ExpiresAt.IsZero() {
		out.ExpiresAt = prev.ExpiresAt.UTC().Format(time.RFC3339)
	}

	if !prev.Admitted {
		logWarn("query rejected by validator", map[string]interface{}{
			"reason": prev.Reason,
			"query":  util.TruncateQuery(sqlText, 200),
		})
	}
	return nil, out, nil
}

func toolQueryOracle(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input QueryOracleInput,
) (*mcp.CallToolResult, QueryResult, error) {
	timer := NewQueryTimer("query_oracle")

	sqlText := strings.TrimSpace(input.SQL)
	if sqlText == "" {
		return nil, QueryResult{}, fmt.Errorf("sql is required")
	}

	inputTokens, _ := estimateTokensForValue(input)
	tokens := &TokenUsage{
		InputEstimated: inputTokens,
		TotalEstimated: inputTokens,
		Model:          tokenModel,
	}

	exec, err := gw.ExecuteQuery(ctx, sqlText, input.ApprovalToken)
	if err != nil {
		timer.LogError(err, sqlText, tokens)
		return nil, QueryResult{}, err
	}

	result := QueryResult{
		Columns:    exec.Result.Columns,
		Rows:       exec.Result.Rows,
		RowCount:   exec.Result.Count,
		Complexity: exec.Complexity,
		Warnings:   exec.Warnings,
		DurationMs: exec.DurationMs,
	}

	outputTokens, _ := estimateTokensForValue(result)
	tokens.OutputEstimated = outputTokens
	tokens.TotalEstimated = inputTokens + outputTokens

	timer.LogSuccess(result.RowCount, sqlText, tokens)
	return nil, result, nil
}

func toolDescribeTable(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input DescribeTableInput,
) (*mcp.CallToolResult, DescribeTableOutput, error) {

	if strings.TrimSpace(input.Table) == "" {
		return nil, DescribeTableOutput{}, fmt.Errorf("table is required")
	}

	info, err := gw.DescribeTable(ctx, input.Table, input.Schema)
	if err != nil {
		return nil, DescribeTableOutput{}, err
	}

	out := DescribeTableOutput{Table: info.Table, Schema: info.Schema, Columns: make([]ColumnInfo, 0, len(info.Columns))}
	for _, c := range info.Columns {
		out.Columns = append(out.Columns, ColumnInfo{
			Name:       c.Name,
			DataType:   c.DataType,
			Length:     c.Length,
			Precision:  c.Precision,
			Scale:      c.Scale,
			Nullable:   c.Nullable,
			Default:    c.Default,
			PrimaryKey: c.PrimaryKey,
		})
	}
	return nil, out, nil
}

func toolListTables(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ListTablesInput,
) (*mcp.CallToolResult, ListTablesOutput, error) {

	tables, err := gw.ListTables(ctx, input.Schema)
	if err != nil {
		return nil, ListTablesOutput{}, err
	}
	out := ListTablesOutput{Tables: tables, Count: len(tables)}
	if input.Schema != "" {
		// Reached only after the gateway accepted the identifier.
		out.Schema = strings.ToUpper(input.Schema)
	}
	return nil, out, nil
}

func toolPing(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input PingInput,
) (*mcp.CallToolResult, PingOutput, error) {

	latency, err := gw.Ping(ctx)
	if err != nil {
		return nil, PingOutput{
			Success: false,
			Message: fmt.Sprintf("ping failed: %v", err),
		}, nil
	}

	return nil, PingOutput{
		Success:   true,
		LatencyMs: latency.Milliseconds(),
		Message:   "pong",
	}, nil
}

func toolGatewayStatus(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GatewayStatusInput,
) (*mcp.CallToolResult, GatewayStatusOutput, error) {

	st := gw.Status()
	out := GatewayStatusOutput{
		Pool: PoolStatus{
			Total:      st.Pool.Total,
			Healthy:    st.Pool.Healthy,
			Unhealthy:  st.Pool.Unhealthy,
			AllHealthy: st.Pool.AllHealthy,
		},
		Circuit: CircuitStatus{
			State:               st.Circuit.State,
			ConsecutiveFailures: st.Circuit.ConsecutiveFailures,
			ProbeSuccesses:      st.Circuit.ProbeSuccesses,
			RetryAfterSeconds:   st.Circuit.RetryAfterSeconds,
		},
		PendingApprovals: st.PendingApprovals,
		RateLimit: RateLimitStatus{
			Used:          st.RateLimit.Used,
			Max:           st.RateLimit.Max,
			WindowSeconds: st.RateLimit.WindowSeconds,
		},
	}
	return nil, out, nil
}
