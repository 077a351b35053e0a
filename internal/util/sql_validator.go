// internal/util/sql_validator.go
package util

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xwb1989/sqlparser"
)

// Verdict is the result of running a statement through the admission rules.
// Exactly one of Reason / EffectiveSQL is set: a rejected statement has a
// reason and no effective SQL, an admitted one has effective SQL (with the
// row cap applied when needed) and no reason.
type Verdict struct {
	Admitted      bool     `json:"admitted"`
	Reason        string   `json:"reason,omitempty"`
	Warnings      []string `json:"warnings"`
	Complexity    int      `json:"complexity"`
	AppliedRowCap int      `json:"applied_row_cap,omitempty"`
	EffectiveSQL  string   `json:"-"`
}

// SQLValidationError carries a rejection reason for callers that want an
// error value rather than a Verdict.
type SQLValidationError struct {
	Reason string
}

func (e *SQLValidationError) Error() string { return e.Reason }

// Default safety limits.
const (
	DefaultMaxComplexity = 50
	DefaultMaxRows       = 10000
)

// Validator runs the ordered admission pipeline over raw SQL. All checks
// operate on the canonical form (see NormalizeSQL); the row-cap rewrite
// operates on the original text, which is what ultimately executes.
type Validator struct {
	MaxComplexity   int
	MaxRows         int
	AllowCrossJoins bool
}

// NewValidator returns a validator with the given limits; non-positive
// values fall back to the defaults.
func NewValidator(maxComplexity, maxRows int, allowCrossJoins bool) *Validator {
	if maxComplexity <= 0 {
		maxComplexity = DefaultMaxComplexity
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Validator{
		MaxComplexity:   maxComplexity,
		MaxRows:         maxRows,
		AllowCrossJoins: allowCrossJoins,
	}
}

// Verbs that never appear in an admitted statement, matched as whole words
// against the canonical form. Word boundaries guarantee UPDATED_AT does not
// match UPDATE.
var forbiddenVerbs = []string{
	"DELETE", "INSERT", "UPDATE", "MERGE", "DROP", "TRUNCATE", "ALTER",
	"CREATE", "GRANT", "REVOKE", "EXECUTE", "CALL", "COMMIT", "ROLLBACK",
	"SAVEPOINT", "LOCK", "RENAME",
}

// Set operators let a query pull rows from arbitrary tables through type
// coercion and are blocked outright.
var setOperators = []string{"UNION", "INTERSECT", "MINUS", "EXCEPT"}

var (
	forbiddenVerbRes = compileWordPatterns(forbiddenVerbs)
	setOperatorRes   = compileWordPatterns(setOperators)

	leadingVerbRe   = regexp.MustCompile(`^(SELECT|WITH)\b`)
	crossJoinRe     = regexp.MustCompile(`\bCROSS\s+JOIN\b`)
	cartesianWordRe = regexp.MustCompile(`\bCARTESIAN\b`)
	joinOnRe        = regexp.MustCompile(`\bJOIN\b.*\bON\b`)
	whereRe         = regexp.MustCompile(`\bWHERE\b`)
	joinRe          = regexp.MustCompile(`\bJOIN\b`)
	distinctRe      = regexp.MustCompile(`\bDISTINCT\b`)
	selectStarRe    = regexp.MustCompile(`\bSELECT\s+\*`)
	subqueryRe      = regexp.MustCompile(`\(\s*SELECT\b`)
	windowOverRe    = regexp.MustCompile(`\)\s*OVER\s*\(`)
	leadingWildRe   = regexp.MustCompile(`\bLIKE\s+'%`)
	orRe            = regexp.MustCompile(`\bOR\b`)
	rowBoundRe      = regexp.MustCompile(`\bROWNUM\s*[<>=]`)
	fetchFirstRe    = regexp.MustCompile(`\bFETCH\s+FIRST\b`)
	tableRefRe      = regexp.MustCompile(`\b(FROM|JOIN)\s+([A-Z_][A-Z0-9_$#]*)\s+(?:AS\s+)?([A-Z_][A-Z0-9_$#]*)`)
	aggregateRes    = compileWordPatterns([]string{"COUNT", "SUM", "AVG", "MIN", "MAX"})
	groupByRe       = regexp.MustCompile(`\bGROUP\s+BY\b`)
	needsWrapRe     = regexp.MustCompile(`\b(ORDER\s+BY|GROUP\s+BY|HAVING)\b`)
)

// Reserved words the table-reference pattern must not mistake for an alias
// when counting self-joins.
var notAnAlias = map[string]bool{
	"WHERE": true, "GROUP": true, "ORDER": true, "HAVING": true, "ON": true,
	"JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true, "FULL": true,
	"CROSS": true, "SELECT": true, "AND": true, "OR": true,
	"START": true, "CONNECT": true, "FETCH": true, "FOR": true,
}

func compileWordPatterns(words []string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(words))
	for i, w := range words {
		res[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(w) + `\b`)
	}
	return res
}

// Validate runs every admission rule in order, short-circuiting on the first
// rejection, then scores complexity and applies the row cap.
func (v *Validator) Validate(raw string) Verdict {
	canonical := NormalizeSQL(raw)
	verdict := Verdict{Warnings: []string{}}

	if canonical == "" || canonical == ";" {
		return rejectedVerdict("empty query")
	}

	if reason := checkSingleStatement(raw, canonical); reason != "" {
		return rejectedVerdict(reason)
	}

	if !leadingVerbRe.MatchString(canonical) {
		return rejectedVerdict("only SELECT queries (including WITH common table expressions) are allowed")
	}

	for i, re := range forbiddenVerbRes {
		if re.MatchString(canonical) {
			return rejectedVerdict(fmt.Sprintf("blocked operation detected: %s; only read-only SELECT statements are allowed", forbiddenVerbs[i]))
		}
	}

	for i, re := range setOperatorRes {
		if re.MatchString(canonical) {
			return rejectedVerdict(fmt.Sprintf("set operator %s is not allowed", setOperators[i]))
		}
	}

	if reason := v.checkCartesian(canonical); reason != "" {
		return rejectedVerdict(reason)
	}

	verdict.Complexity = v.score(canonical, &verdict.Warnings)
	if verdict.Complexity > v.MaxComplexity {
		verdict.Reason = fmt.Sprintf("query complexity score (%d) exceeds maximum allowed (%d); simplify the query", verdict.Complexity, v.MaxComplexity)
		return verdict
	}

	verdict.Admitted = true
	verdict.EffectiveSQL = v.applyRowCap(raw, canonical, &verdict.AppliedRowCap)
	return verdict
}

func rejectedVerdict(reason string) Verdict {
	return Verdict{Reason: reason, Warnings: []string{}}
}

// checkSingleStatement rejects anything containing more than one SQL
// statement. The parser-based split understands semicolons inside string
// literals; when the statement does not tokenize at all we fall back to a
// plain semicolon scan of the canonical form.
func checkSingleStatement(raw, canonical string) string {
	pieces, err := sqlparser.SplitStatementToPieces(raw)
	if err == nil {
		if len(pieces) > 1 {
			return "multi-statement queries are not allowed"
		}
		return ""
	}
	if strings.Contains(strings.TrimRight(canonical, "; "), ";") {
		return "multi-statement queries are not allowed"
	}
	return ""
}

// checkCartesian rejects explicit cross joins, comma-separated FROM lists and
// multi-table statements with neither WHERE nor JOIN..ON conditions, all of
// which can explode into cartesian products.
func (v *Validator) checkCartesian(canonical string) string {
	if v.AllowCrossJoins {
		return ""
	}

	if crossJoinRe.MatchString(canonical) || cartesianWordRe.MatchString(canonical) {
		return "explicit CROSS JOIN produces a cartesian product and is not allowed"
	}

	fromClause := topLevelFromClause(canonical)
	if strings.Contains(fromClause, ",") {
		return "comma-separated tables in FROM create an implicit cartesian product; use explicit JOIN syntax"
	}

	if tableCount(canonical) > 1 && !whereRe.MatchString(canonical) && !joinOnRe.MatchString(canonical) {
		return "multi-table query without WHERE or JOIN ON conditions could create a cartesian product"
	}

	return ""
}

// score computes the complexity of an admitted statement and collects the
// advisory warnings that accompany admission.
func (v *Validator) score(canonical string, warnings *[]string) int {
	score := 5

	joins := len(joinRe.FindAllStringIndex(canonical, -1))
	score += joins * 5

	aggregates := len(groupByRe.FindAllStringIndex(canonical, -1))
	for _, re := range aggregateRes {
		aggregates += len(re.FindAllStringIndex(canonical, -1))
	}
	score += aggregates * 3

	if distinctRe.MatchString(canonical) {
		score += 5
		*warnings = append(*warnings, "DISTINCT can be expensive on large result sets")
	}

	subqueries := len(subqueryRe.FindAllStringIndex(canonical, -1))
	score += subqueries * 10

	ctes := countTopLevelCTEs(canonical)
	score += ctes * 8

	windows := len(windowOverRe.FindAllStringIndex(canonical, -1))
	score += windows * 12

	score += countSelfJoins(canonical) * 15

	wildcards := len(leadingWildRe.FindAllStringIndex(canonical, -1))
	if wildcards > 0 {
		score += wildcards * 10
		*warnings = append(*warnings, fmt.Sprintf("%d LIKE pattern(s) with a leading wildcard prevent index usage", wildcards))
	}

	if ors := len(orRe.FindAllStringIndex(canonical, -1)); ors > 2 {
		score += (ors - 2) * 4
	}

	if depth := maxSubqueryDepth(canonical); depth > 2 {
		score += (depth - 2) * 5
		*warnings = append(*warnings, fmt.Sprintf("subqueries nested %d levels deep can significantly impact performance", depth))
	}

	if tables := tableCount(canonical); tables > 1 {
		if whereRe.MatchString(canonical) {
			*warnings = append(*warnings, fmt.Sprintf("query involves %d tables; ensure join conditions are selective", tables))
		}
		if selectStarRe.MatchString(canonical) {
			*warnings = append(*warnings, "SELECT * with multiple tables can be expensive; consider naming columns")
		}
	}

	if subqueries > 0 || ctes > 0 || windows > 0 {
		*warnings = append(*warnings, fmt.Sprintf("query contains %d subquery(ies), %d CTE(s), %d window function(s); monitor performance", subqueries, ctes, windows))
	}

	return score
}

// applyRowCap rewrites the statement with a ROWNUM bound when no ROWNUM or
// FETCH FIRST bound is already present. Statements with an outermost ORDER
// BY (or GROUP BY / HAVING) are wrapped so the bound applies after ordering
// and grouping.
func (v *Validator) applyRowCap(raw, canonical string, applied *int) string {
	stmt := strings.TrimRight(strings.TrimSpace(raw), "; \t\n\r")

	if rowBoundRe.MatchString(canonical) || fetchFirstRe.MatchString(canonical) {
		return stmt
	}

	*applied = v.MaxRows
	if needsWrapRe.MatchString(canonical) {
		return fmt.Sprintf("SELECT * FROM (\n%s\n) WHERE ROWNUM <= %d", stmt, v.MaxRows)
	}
	if whereRe.MatchString(canonical) {
		return fmt.Sprintf("%s AND ROWNUM <= %d", stmt, v.MaxRows)
	}
	return fmt.Sprintf("%s WHERE ROWNUM <= %d", stmt, v.MaxRows)
}

// topLevelFromClause returns the text between the first FROM outside any
// parentheses and the next top-level WHERE/GROUP/ORDER/HAVING (or the end),
// with every parenthesized run removed so subquery commas do not count.
func topLevelFromClause(canonical string) string {
	depth := 0
	start := -1
	for i := 0; i+4 <= len(canonical); i++ {
		switch canonical[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		}
		if depth == 0 && wordAt(canonical, i, "FROM") {
			start = i + 4
			break
		}
	}
	if start < 0 {
		return ""
	}

	var b strings.Builder
	depth = 0
	for i := start; i < len(canonical); i++ {
		c := canonical[i]
		if c == '(' {
			depth++
			continue
		}
		if c == ')' {
			if depth > 0 {
				depth--
			}
			continue
		}
		if depth > 0 {
			continue
		}
		if wordAt(canonical, i, "WHERE") || wordAt(canonical, i, "GROUP") ||
			wordAt(canonical, i, "ORDER") || wordAt(canonical, i, "HAVING") {
			break
		}
		b.WriteByte(c)
	}
	return b.String()
}

// wordAt reports whether the whole word w starts at position i of s.
func wordAt(s string, i int, w string) bool {
	if i+len(w) > len(s) || s[i:i+len(w)] != w {
		return false
	}
	if i > 0 && isWordChar(s[i-1]) {
		return false
	}
	if i+len(w) < len(s) && isWordChar(s[i+len(w)]) {
		return false
	}
	return true
}

func isWordChar(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// tableCount estimates the number of tables referenced by the top-level FROM
// clause: the leading table plus one per comma and per JOIN.
func tableCount(canonical string) int {
	fromClause := topLevelFromClause(canonical)
	if fromClause == "" {
		return 1
	}
	return 1 + strings.Count(fromClause, ",") + len(joinRe.FindAllStringIndex(fromClause, -1))
}

// countSelfJoins counts base tables that appear more than once among aliased
// FROM/JOIN entries; each duplicated table counts as one self-join.
func countSelfJoins(canonical string) int {
	seen := map[string]int{}
	for _, m := range tableRefRe.FindAllStringSubmatch(canonical, -1) {
		if notAnAlias[m[3]] {
			continue
		}
		seen[m[2]]++
	}
	selfJoins := 0
	for _, n := range seen {
		if n > 1 {
			selfJoins++
		}
	}
	return selfJoins
}

// countTopLevelCTEs counts the named terms of a leading WITH clause. Only
// depth-zero names count; a WITH inside a subquery is covered by the
// subquery penalty instead.
func countTopLevelCTEs(canonical string) int {
	if !strings.HasPrefix(canonical, "WITH ") {
		return 0
	}
	count := 0
	depth := 0
	expectName := true
	i := 5
	for i < len(canonical) {
		c := canonical[i]
		switch {
		case c == '(':
			depth++
			i++
		case c == ')':
			if depth > 0 {
				depth--
			}
			i++
		case depth == 0 && expectName && (c >= 'A' && c <= 'Z' || c == '_'):
			// Next bare word at depth zero is either a CTE name or the
			// terminating SELECT of the WITH clause.
			j := i
			for j < len(canonical) && isWordChar(canonical[j]) {
				j++
			}
			if canonical[i:j] == "SELECT" {
				return count
			}
			count++
			expectName = false
			i = j
		case depth == 0 && c == ',':
			expectName = true
			i++
		default:
			i++
		}
	}
	return count
}

// maxSubqueryDepth returns the deepest nesting of "( SELECT" openings.
func maxSubqueryDepth(canonical string) int {
	var stack []bool
	depth, maxDepth := 0, 0

	for i := 0; i < len(canonical); i++ {
		switch canonical[i] {
		case '(':
			sub := false
			j := i + 1
			for j < len(canonical) && canonical[j] == ' ' {
				j++
			}
			if wordAt(canonical, j, "SELECT") {
				sub = true
				depth++
				if depth > maxDepth {
					maxDepth = depth
				}
			}
			stack = append(stack, sub)
		case ')':
			if n := len(stack); n > 0 {
				if stack[n-1] {
					depth--
				}
				stack = stack[:n-1]
			}
		}
	}
	return maxDepth
}
