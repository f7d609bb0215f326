package rpcserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the monitor's RPC server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolAccountKPI = mcp.NewTool("get_account_kpi",
	mcp.WithDescription(
		"Summarize an account's money flows over an inclusive step range. "+
			"Returns outgoing count, total, average and labeled-fraud count, incoming count, total and average, "+
			"and the most frequent outgoing transaction types."),
	mcp.WithString("name",
		mcp.Required(),
		mcp.Description("Account identifier (e.g. 'C1231006815')")),
	mcp.WithNumber("step_from",
		mcp.Description("First step of the range, inclusive (default 1)")),
	mcp.WithNumber("step_to",
		mcp.Description("Last step of the range, inclusive (default 200)")),
)

var ToolDetectSuspicious = mcp.NewTool("detect_suspicious",
	mcp.WithDescription(
		"List an account's largest outgoing TRANSFER and CASH_OUT transactions at or above a threshold, "+
			"largest first. window_steps is reported back with the result but does not filter candidates."),
	mcp.WithString("name",
		mcp.Required(),
		mcp.Description("Account identifier (e.g. 'C1231006815')")),
	mcp.WithNumber("min_amount",
		mcp.Description("Minimum amount for a transaction to count (default 200000)")),
	mcp.WithNumber("window_steps",
		mcp.Description("Step window reported with the result (default 10)")),
	mcp.WithNumber("max_rows",
		mcp.Description("Maximum number of matches to return (default 10)")),
)

var ToolScoreAccount = mcp.NewTool("score_account",
	mcp.WithDescription(
		"Score an account's fraud risk from 0 to 100 with explainable rules. "+
			"Combines the account KPI, a detection run and, when tx_id is given, signals from that transaction. "+
			"Returns the score, severity, per-rule breakdown, findings and recommended next actions."),
	mcp.WithString("name",
		mcp.Required(),
		mcp.Description("Account identifier (e.g. 'C1231006815')")),
	mcp.WithNumber("step_from",
		mcp.Description("First step of the KPI range, inclusive (default 1)")),
	mcp.WithNumber("step_to",
		mcp.Description("Last step of the KPI range, inclusive (default 200)")),
	mcp.WithNumber("min_amount",
		mcp.Description("Detection threshold (default 200000)")),
	mcp.WithNumber("window_steps",
		mcp.Description("Detection window in steps (default 10)")),
	mcp.WithNumber("max_rows",
		mcp.Description("Maximum detection matches considered (default 10)")),
	mcp.WithNumber("tx_id",
		mcp.Description("Optional transaction id to add single-transaction signals")),
)

var ToolSuggestParams = mcp.NewTool("suggest_detection_params",
	mcp.WithDescription(
		"Propose a detection threshold and window for an account from its outgoing amount distribution "+
			"(95th percentile, average and activity density)."),
	mcp.WithString("name",
		mcp.Required(),
		mcp.Description("Account identifier (e.g. 'C1231006815')")),
)

var ToolOverview = mcp.NewTool("get_overview",
	mcp.WithDescription(
		"Get dataset-wide statistics: transaction count, labeled fraud count and rate, step range, "+
			"the most frequent transaction types, the id range and the busiest sending account (demo_account)."),
)

// Resource templates.

var ResourceAccount = mcp.NewResourceTemplate(accountURIPrefix+"{name}", "Account summary",
	mcp.WithTemplateDescription("All-time outgoing and incoming totals for an account"),
	mcp.WithTemplateMIMEType(jsonMIME),
)

var ResourceTransaction = mcp.NewResourceTemplate(transactionURIPrefix+"{id}", "Transaction",
	mcp.WithTemplateDescription("A single transaction by id, or {id, found:false} when missing"),
	mcp.WithTemplateMIMEType(jsonMIME),
)
