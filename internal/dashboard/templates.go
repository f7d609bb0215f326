package dashboard

import (
	"html/template"
	"strings"

	"github.com/fraudlens/paysim-monitor/internal/risk"
)

const layoutHTML = `{{define "layout"}}<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}} · PaySim Monitor</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        :root {
            --bg: #09090b; --bg-subtle: #18181b; --border: #27272a;
            --text: #fafafa; --text-secondary: #a1a1aa; --text-tertiary: #52525b;
            --accent: #22c55e; --warn: #f59e0b; --danger: #ef4444;
        }
        body {
            font-family: -apple-system, 'Inter', sans-serif;
            background: var(--bg); color: var(--text);
            min-height: 100vh; font-size: 14px;
        }
        .mono { font-family: 'JetBrains Mono', monospace; }
        .container { max-width: 1200px; margin: 0 auto; padding: 0 24px; }
        header { border-bottom: 1px solid var(--border); padding: 16px 0; }
        .header-inner { display: flex; justify-content: space-between; align-items: center; }
        .logo { font-weight: 600; color: var(--text); text-decoration: none; }
        nav { display: flex; gap: 32px; }
        nav a { color: var(--text-secondary); text-decoration: none; font-size: 13px; }
        nav a.active { color: var(--text); }
        .page-header { padding: 40px 0 24px; border-bottom: 1px solid var(--border); }
        .page-title { font-size: 24px; font-weight: 600; margin-bottom: 4px; }
        .page-desc { color: var(--text-secondary); }
        section { padding: 24px 0; }
        h2 { font-size: 16px; font-weight: 600; margin-bottom: 12px; }
        .stats { display: grid; grid-template-columns: repeat(auto-fill, minmax(200px, 1fr)); gap: 16px; }
        .stat { background: var(--bg-subtle); border: 1px solid var(--border); border-radius: 12px; padding: 16px; }
        .stat-value { font-size: 20px; font-weight: 600; }
        .stat-label { font-size: 12px; color: var(--text-tertiary); margin-top: 4px; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 8px 12px; border-bottom: 1px solid var(--border); }
        th { color: var(--text-tertiary); font-weight: 500; font-size: 12px; }
        td.num { text-align: right; font-family: 'JetBrains Mono', monospace; }
        form { display: flex; gap: 12px; flex-wrap: wrap; align-items: flex-end; }
        label { display: flex; flex-direction: column; gap: 4px; font-size: 12px; color: var(--text-secondary); }
        input, select { background: var(--bg-subtle); color: var(--text); border: 1px solid var(--border); border-radius: 6px; padding: 6px 10px; }
        button { background: var(--accent); color: var(--bg); border: 0; border-radius: 6px; padding: 8px 14px; font-weight: 600; }
        .badge { display: inline-block; padding: 2px 10px; border-radius: 999px; font-size: 12px; font-weight: 600; }
        .badge-low { background: #14532d; color: var(--accent); }
        .badge-medium, .badge-moderate { background: #451a03; color: var(--warn); }
        .badge-high { background: #450a0a; color: var(--danger); }
        .note { color: var(--text-tertiary); font-size: 12px; margin-top: 8px; }
        .error { background: #450a0a; border: 1px solid var(--danger); border-radius: 8px; padding: 12px 16px; }
        ul.insights { padding-left: 20px; line-height: 1.8; }
        .off { color: var(--text-tertiary); }
        footer { border-top: 1px solid var(--border); padding: 24px 0; margin-top: 48px; text-align: center; color: var(--text-tertiary); font-size: 13px; }
        footer a { color: var(--text-secondary); }
    </style>
</head>
<body>
    <header><div class="container header-inner">
        <a href="/" class="logo">PaySim Monitor</a>
        <nav>
            <a href="/"{{if eq .Nav "overview"}} class="active"{{end}}>Overview</a>
            <a href="/accounts"{{if eq .Nav "accounts"}} class="active"{{end}}>Accounts</a>
            <a href="/detect"{{if eq .Nav "detect"}} class="active"{{end}}>Detection</a>
            <a href="/tx"{{if eq .Nav "tx"}} class="active"{{end}}>Transactions</a>
        </nav>
    </div></header>
    <main class="container">
        <div class="page-header">
            <h1 class="page-title">{{.Title}}</h1>
            <p class="page-desc">{{.Desc}}</p>
        </div>
        {{if .Error}}<section><div class="error">{{.Error}}</div></section>{{end}}
        {{template "content" .}}
    </main>
    <footer><div class="container">Simulated PaySim data · <a href="/v1/overview">API</a> · <a href="/metrics">Metrics</a></div></footer>
</body>
</html>{{end}}

{{define "assessment"}}{{with .}}
<section>
    <h2>{{.Title}} <span class="badge badge-{{lower .Severity}}">{{.Severity}}</span></h2>
    <ul class="insights">{{range .Bullets}}<li>{{.}}</li>{{end}}</ul>
</section>
<section>
    <h2>Next actions</h2>
    <ul class="insights">{{range .NextActions}}<li>{{.}}</li>{{end}}</ul>
</section>
<section>
    <h2>Score breakdown</h2>
    <table>
        <tr><th>Rule</th><th>Points</th><th>Why</th></tr>
        {{range .Breakdown}}<tr{{if not .Triggered}} class="off"{{end}}><td>{{.ID}} {{.Rule}}</td><td class="num">{{.Points}}</td><td>{{.Why}}</td></tr>{{end}}
    </table>
    <p class="note">{{.Note}}</p>
</section>
{{end}}{{end}}

{{define "account-form"}}
<label>Account
    <input name="name" list="accounts" value="{{.Name}}" placeholder="C1231006815">
    <datalist id="accounts">{{range .Accounts}}<option value="{{.}}">{{end}}</datalist>
</label>
{{end}}`

const overviewHTML = `{{define "content"}}{{with .Overview}}
<section>
    <div class="stats">
        <div class="stat"><div class="stat-value">{{count .N}}</div><div class="stat-label">Transactions</div></div>
        <div class="stat"><div class="stat-value">{{count .NFraud}}</div><div class="stat-label">Labeled fraud</div></div>
        <div class="stat"><div class="stat-value">{{percent .FraudRate}}</div><div class="stat-label">Fraud rate</div></div>
        <div class="stat"><div class="stat-value">{{.StepMin}} – {{.StepMax}}</div><div class="stat-label">Step range</div></div>
    </div>
    {{if .DemoAccount}}<p class="note">Busiest sender <a href="/accounts?name={{.DemoAccount}}">{{.DemoAccount}}</a> · ids {{.IDMin}} to {{.IDMax}}</p>{{end}}
</section>
<section>
    <h2>Most frequent types</h2>
    <table>
        <tr><th>Type</th><th>Count</th></tr>
        {{range .TopTypes}}<tr><td>{{.Type}}</td><td class="num">{{count .Count}}</td></tr>{{end}}
    </table>
</section>
{{end}}{{end}}`

const accountsHTML = `{{define "content"}}
<section>
    <form method="get" action="/accounts">
        {{template "account-form" .}}
        <label>Step from <input name="step_from" value="{{.StepFrom}}" size="6"></label>
        <label>Step to <input name="step_to" value="{{.StepTo}}" size="6"></label>
        <button type="submit">Analyze</button>
    </form>
</section>
{{with .KPI}}
<section>
    <h2>{{.Name}} · steps {{.StepFrom}} to {{.StepTo}}</h2>
    <div class="stats">
        <div class="stat"><div class="stat-value">{{count .Out.Count}}</div><div class="stat-label">Outgoing</div></div>
        <div class="stat"><div class="stat-value">{{amount .Out.Total}}</div><div class="stat-label">Total out</div></div>
        <div class="stat"><div class="stat-value">{{amount .Out.Average}}</div><div class="stat-label">Average out</div></div>
        <div class="stat"><div class="stat-value">{{count .Out.Fraud}}</div><div class="stat-label">Labeled fraud out</div></div>
        <div class="stat"><div class="stat-value">{{count .In.Count}}</div><div class="stat-label">Incoming</div></div>
        <div class="stat"><div class="stat-value">{{amount .In.Total}}</div><div class="stat-label">Total in</div></div>
    </div>
</section>
<section>
    <h2>Outgoing types</h2>
    <table>
        <tr><th>Type</th><th>Count</th></tr>
        {{range .TopOutTypes}}<tr><td>{{.Type}}</td><td class="num">{{count .Count}}</td></tr>{{else}}<tr><td colspan="2" class="off">No outgoing transactions in range</td></tr>{{end}}
    </table>
</section>
{{end}}
{{template "assessment" .Assessment}}
{{with .History}}
<section>
    <h2>Transactions</h2>
    <table>
        <tr><th>Id</th><th>Step</th><th>Type</th><th>From</th><th>To</th><th>Amount</th><th>Fraud</th></tr>
        {{range .Transactions}}<tr><td><a href="/tx?id={{.ID}}">{{.ID}}</a></td><td>{{.Step}}</td><td>{{.Type}}</td><td>{{.OriginAccount}}</td><td>{{.DestinationAccount}}</td><td class="num">{{amount .Amount}}</td><td>{{if .IsFraud}}yes{{end}}</td></tr>{{end}}
    </table>
    {{if .HasMore}}<p class="note"><a href="/accounts?name={{.Account}}&step_from={{$.StepFrom}}&step_to={{$.StepTo}}&cursor={{.NextCursor}}">Next page</a></p>{{end}}
</section>
{{end}}
{{end}}`

const detectHTML = `{{define "content"}}
<section>
    <form method="get" action="/detect">
        {{template "account-form" .}}
        <label>Min amount <input name="min_amount" value="{{.Params.MinAmount}}" size="10"></label>
        <label>Window (steps) <input name="window_steps" value="{{.Params.WindowSteps}}" size="4"></label>
        <label>Max rows <input name="max_rows" value="{{.Params.MaxRows}}" size="4"></label>
        <label>Auto-tune <select name="auto"><option value="">off</option><option value="1"{{if .Auto}} selected{{end}}>on</option></select></label>
        <button type="submit">Detect</button>
    </form>
</section>
{{with .Suggestion}}
<section>
    <h2>Auto-tuned parameters</h2>
    <p>Threshold {{amount .MinAmount}} and window {{.WindowSteps}} steps from {{count .Count}} outgoing transactions
    (average {{amount .Average}}, p95 {{amount .P95}}, max {{amount .Max}}, density {{printf "%.2f" .Density}} per step).</p>
</section>
{{end}}
{{with .Result}}
<section>
    <h2>{{len .Matches}} match(es), {{.FraudCount}} labeled fraud <span class="badge badge-{{lower $.Badge}}">{{$.Badge}}</span></h2>
    <table>
        <tr><th>Id</th><th>Step</th><th>Type</th><th>To</th><th>Amount</th><th>Fraud</th></tr>
        {{range .Matches}}<tr><td><a href="/tx?id={{.ID}}">{{.ID}}</a></td><td>{{.Step}}</td><td>{{.Type}}</td><td>{{.DestAccount}}</td><td class="num">{{amount .Amount}}</td><td>{{if .IsFraud}}yes{{end}}</td></tr>{{end}}
    </table>
    <p class="note">{{.Note}} Window {{.WindowSteps}} steps is reported, not applied.</p>
</section>
{{end}}
{{with .Diagnosis}}
<section>
    <h2>Why nothing matched</h2>
    <p>{{.Reason}}</p>
    {{if .SuggestAmount}}<p class="note">Try min_amount = {{amount .SuggestAmount}}.</p>{{end}}
</section>
{{end}}
{{template "assessment" .Assessment}}
{{end}}`

const txHTML = `{{define "content"}}
<section>
    <form method="get" action="/tx">
        <label>Transaction id <input name="id" value="{{if .ID}}{{.ID}}{{end}}" placeholder="{{.MinID}}"></label>
        <button type="submit">Look up</button>
        <button type="submit" name="random" value="1">Random</button>
    </form>
    {{if .MaxID}}<p class="note">Ids range from {{.MinID}} to {{.MaxID}}.</p>{{end}}
</section>
{{if .Missing}}
<section><div class="error">Transaction {{.ID}} not found.</div></section>
{{end}}
{{with .Tx}}
<section>
    <h2>Transaction {{.ID}}{{if .IsFraud}} <span class="badge badge-high">labeled fraud</span>{{end}}</h2>
    <table>
        <tr><th>Step</th><td>{{.Step}}</td></tr>
        <tr><th>Type</th><td>{{.Type}}</td></tr>
        <tr><th>Amount</th><td class="num">{{amount .Amount}}</td></tr>
        <tr><th>Origin</th><td><a href="/accounts?name={{.OriginAccount}}">{{.OriginAccount}}</a> · {{amount .OriginOldBalance}} → {{amount .OriginNewBalance}}</td></tr>
        <tr><th>Destination</th><td><a href="/accounts?name={{.DestinationAccount}}">{{.DestinationAccount}}</a> · {{amount .DestinationOldBalance}} → {{amount .DestinationNewBalance}}</td></tr>
        <tr><th>Flagged by rule</th><td>{{if .IsFlaggedFraud}}yes{{else}}no{{end}}</td></tr>
    </table>
</section>
{{end}}
{{with .KPI}}
<section>
    <h2>Origin account context</h2>
    <div class="stats">
        <div class="stat"><div class="stat-value">{{count .Out.Count}}</div><div class="stat-label">Outgoing</div></div>
        <div class="stat"><div class="stat-value">{{amount .Out.Total}}</div><div class="stat-label">Total out</div></div>
        <div class="stat"><div class="stat-value">{{count .In.Count}}</div><div class="stat-label">Incoming</div></div>
        <div class="stat"><div class="stat-value">{{amount .In.Total}}</div><div class="stat-label">Total in</div></div>
    </div>
</section>
{{end}}
{{template "assessment" .Assessment}}
{{end}}`

var funcs = template.FuncMap{
	"amount":  formatAmount,
	"count":   formatCount,
	"percent": formatPercent,
	"lower":   lower,
}

func lower(v any) string {
	switch s := v.(type) {
	case risk.Severity:
		return strings.ToLower(string(s))
	case risk.Badge:
		return strings.ToLower(string(s))
	case string:
		return strings.ToLower(s)
	default:
		return ""
	}
}

var pages = map[string]*template.Template{
	"overview": page(overviewHTML),
	"accounts": page(accountsHTML),
	"detect":   page(detectHTML),
	"tx":       page(txHTML),
}

func page(content string) *template.Template {
	t := template.Must(template.New("layout").Funcs(funcs).Parse(layoutHTML))
	return template.Must(t.Parse(content))
}
