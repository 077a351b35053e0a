package main

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func wrapTool[I any, O any](toolName string, h mcp.ToolHandlerFor[I, O]) mcp.ToolHandlerFor[I, O] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input I) (*mcp.CallToolResult, O, error) {
		start := time.Now()
		res, out, err := h(ctx, req, input)

		// Only emit these extra logs when token tracking is explicitly enabled.
		// This keeps default behavior unchanged.
		if tokenTracking && toolName != "query_oracle" {
			inputTokens, _ := estimateTokensForValue(input)
			outputTokens := 0
			if err == nil {
				outputTokens, _ = estimateTokensForValue(out)
			}
			tokens := TokenUsage{
				InputEstimated:  inputTokens,
				OutputEstimated: outputTokens,
				TotalEstimated:  inputTokens + outputTokens,
				Model:           tokenModel,
			}

			fields := map[string]interface{}{
				"tool":        toolName,
				"duration_ms": time.Since(start).Milliseconds(),
				"tokens": map[string]interface{}{
					"input_estimated":  tokens.InputEstimated,
					"output_estimated": tokens.OutputEstimated,
					"total_estimated":  tokens.TotalEstimated,
					"model":            tokens.Model,
				},
			}
			if err != nil {
				fields["error"] = err.Error()
				logError("tool failed", fields)
			} else {
				logInfo("tool executed", fields)
			}
		}

		return res, out, err
	}
}

// Wrapped tool handlers used by both MCP and HTTP.
var (
	toolPreviewQueryWrapped  = wrapTool("preview_query", toolPreviewQuery)
	toolQueryOracleWrapped   = toolQueryOracle // query_oracle has dedicated query logs with tokens
	toolDescribeTableWrapped = wrapTool("describe_table", toolDescribeTable)
	toolListTablesWrapped    = wrapTool("list_tables", toolListTables)
	toolPingWrapped          = wrapTool("ping", toolPing)
	toolGatewayStatusWrapped = wrapTool("gateway_status", toolGatewayStatus)
)
