// internal/util/sql_validator_test.go
package util

import (
	"strings"
	"testing"
)

func newTestValidator() *Validator {
	return NewValidator(DefaultMaxComplexity, DefaultMaxRows, false)
}

func TestValidateAdmission(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name         string
		sql          string
		wantAdmitted bool
		wantReason   string // substring the reason must contain when rejected
	}{
		// Admitted
		{"simple select", "SELECT * FROM users", true, ""},
		{"select with where", "SELECT id, name FROM users WHERE id = 1", true, ""},
		{"select lowercase", "select * from users", true, ""},
		{"trailing semicolon", "SELECT * FROM dual;", true, ""},
		{"with clause", "WITH recent AS (SELECT id FROM orders) SELECT * FROM recent", true, ""},
		{"keyword split by block comment", "SEL/**/ECT * FROM DUAL", true, ""},
		{"column containing verb substring", "SELECT UPDATED_AT FROM ORDERS", true, ""},
		{"line comment stripped", "SELECT id FROM users -- DROP TABLE users", true, ""},

		// Leading verb
		{"empty query", "", false, "empty"},
		{"whitespace only", "   \t\n", false, "empty"},
		{"comment only", "-- nothing here", false, "empty"},
		{"bare delete", "DELETE FROM users WHERE id = 1", false, "only SELECT"},
		{"bare insert", "INSERT INTO users VALUES (1)", false, "only SELECT"},
		{"random text", "hello world", false, "only SELECT"},

		// Forbidden verbs anywhere in the statement
		{"delete after with", "WITH d AS (SELECT 1 FROM DUAL) DELETE FROM t", false, "DELETE"},
		{"mixed-case verb", "select * from t where exists (dElEtE)", false, "DELETE"},
		{"verb hidden by comment", "SELECT 1 FROM DUAL WHERE dr/**/op = 1", false, "DROP"},
		{"for update lock", "SELECT * FROM users FOR UPDATE", false, "UPDATE"},
		{"verb inside string literal still rejects", "SELECT 'DELETE' FROM DUAL", false, "DELETE"},

		// Set operators
		{"union", "SELECT a FROM t1 UNION SELECT b FROM t2", false, "UNION"},
		{"union all", "SELECT a FROM t1 UNION ALL SELECT b FROM t2", false, "UNION"},
		{"minus", "SELECT a FROM t1 MINUS SELECT a FROM t2", false, "MINUS"},
		{"intersect", "SELECT a FROM t1 INTERSECT SELECT a FROM t2", false, "INTERSECT"},

		// Cartesian guard
		{"comma from list", "SELECT * FROM A, B", false, "cartesian"},
		{"explicit cross join", "SELECT * FROM a CROSS JOIN b", false, "cartesian"},
		{"join without on or where", "SELECT * FROM a JOIN b", false, "cartesian"},
		{"join with on is fine", "SELECT * FROM a JOIN b ON a.id = b.id", true, ""},
		{"subquery comma not counted", "SELECT * FROM t WHERE id IN (SELECT x FROM u WHERE y IN (1, 2))", true, ""},

		// Multi-statement
		{"multi-statement", "SELECT 1 FROM DUAL; DROP TABLE users", false, "multi-statement"},
		{"semicolon in literal ok", "SELECT ';' FROM DUAL", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Validate(tt.sql)
			if got.Admitted != tt.wantAdmitted {
				t.Fatalf("Validate(%q).Admitted = %v, want %v (reason: %q)", tt.sql, got.Admitted, tt.wantAdmitted, got.Reason)
			}
			if tt.wantAdmitted {
				if got.Reason != "" {
					t.Errorf("admitted verdict has reason %q", got.Reason)
				}
				if got.EffectiveSQL == "" {
					t.Errorf("admitted verdict has empty effective SQL")
				}
				return
			}
			if got.Reason == "" {
				t.Fatalf("rejected verdict has empty reason")
			}
			if !strings.Contains(got.Reason, tt.wantReason) {
				t.Errorf("reason %q does not contain %q", got.Reason, tt.wantReason)
			}
			if got.EffectiveSQL != "" {
				t.Errorf("rejected verdict has effective SQL %q", got.EffectiveSQL)
			}
		})
	}
}

func TestValidateAllowCrossJoins(t *testing.T) {
	v := NewValidator(DefaultMaxComplexity, DefaultMaxRows, true)

	for _, sql := range []string{
		"SELECT * FROM a CROSS JOIN b",
		"SELECT * FROM A, B",
	} {
		if got := v.Validate(sql); !got.Admitted {
			t.Errorf("Validate(%q) with cross joins allowed rejected: %q", sql, got.Reason)
		}
	}
}

func TestComplexityScoring(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name string
		sql  string
		want int
	}{
		{"base", "SELECT * FROM DUAL", 5},
		{"comment-split keyword", "SEL/**/ECT * FROM DUAL", 5},
		{"one join", "SELECT a.id FROM a JOIN b ON a.id = b.id", 10},
		{"one aggregate", "SELECT COUNT(*) FROM t", 8},
		{"aggregates and group by", "SELECT COUNT(*), MAX(x) FROM t GROUP BY y", 14},
		{"distinct", "SELECT DISTINCT x FROM t", 10},
		{"subquery", "SELECT * FROM (SELECT x FROM t)", 15},
		{"window function", "SELECT RANK() OVER (PARTITION BY d) FROM t", 17},
		{"leading wildcard like", "SELECT * FROM t WHERE name LIKE '%smith%'", 15},
		{"or beyond two", "SELECT * FROM t WHERE a=1 OR b=2 OR c=3 OR d=4 OR e=5", 13},
		{"self join", "SELECT * FROM emp e1 JOIN emp e2 ON e1.mgr = e2.id", 25},
		{"single cte plus its subquery penalty", "WITH x AS (SELECT 1 FROM DUAL) SELECT * FROM x", 23},
		{"two ctes", "WITH x AS (SELECT 1 FROM DUAL), y AS (SELECT 2 FROM DUAL) SELECT * FROM x JOIN y ON x.a = y.a", 46},
		{
			"nesting depth three",
			"SELECT * FROM t WHERE a IN (SELECT b FROM u WHERE c IN (SELECT d FROM v WHERE e IN (SELECT f FROM w)))",
			40,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Validate(tt.sql)
			if !got.Admitted {
				t.Fatalf("Validate(%q) rejected: %q", tt.sql, got.Reason)
			}
			if got.Complexity != tt.want {
				t.Errorf("complexity = %d, want %d", got.Complexity, tt.want)
			}
		})
	}
}

func TestComplexityCeiling(t *testing.T) {
	v := newTestValidator()

	// Ten joins: 5 base + 10*5 = 55, over the default ceiling of 50.
	sql := "SELECT * FROM a" +
		" JOIN b ON a.x = b.x JOIN c ON b.x = c.x JOIN d ON c.x = d.x" +
		" JOIN e ON d.x = e.x JOIN f ON e.x = f.x JOIN g ON f.x = g.x" +
		" JOIN h ON g.x = h.x JOIN i ON h.x = i.x JOIN j ON i.x = j.x" +
		" JOIN k ON j.x = k.x"

	got := v.Validate(sql)
	if got.Admitted {
		t.Fatalf("expected rejection, got admitted with complexity %d", got.Complexity)
	}
	if !strings.Contains(got.Reason, "complexity") {
		t.Errorf("reason %q does not mention complexity", got.Reason)
	}
	if got.Complexity != 55 {
		t.Errorf("complexity = %d, want 55", got.Complexity)
	}

	// The same statement passes with a raised ceiling.
	relaxed := NewValidator(100, DefaultMaxRows, false)
	if got := relaxed.Validate(sql); !got.Admitted {
		t.Errorf("raised ceiling still rejected: %q", got.Reason)
	}
}

func TestRowCapRewrite(t *testing.T) {
	v := NewValidator(DefaultMaxComplexity, 100, false)

	tests := []struct {
		name     string
		sql      string
		wantSQL  string
		wantCap  int
	}{
		{
			"bare select gets where rownum",
			"SELECT * FROM t",
			"SELECT * FROM t WHERE ROWNUM <= 100",
			100,
		},
		{
			"where clause gets and rownum",
			"SELECT id FROM t WHERE id > 5",
			"SELECT id FROM t WHERE id > 5 AND ROWNUM <= 100",
			100,
		},
		{
			"order by is wrapped",
			"SELECT id FROM t ORDER BY id",
			"SELECT * FROM (\nSELECT id FROM t ORDER BY id\n) WHERE ROWNUM <= 100",
			100,
		},
		{
			"group by is wrapped",
			"SELECT x, COUNT(*) FROM t GROUP BY x",
			"SELECT * FROM (\nSELECT x, COUNT(*) FROM t GROUP BY x\n) WHERE ROWNUM <= 100",
			100,
		},
		{
			"existing rownum bound untouched",
			"SELECT * FROM t WHERE ROWNUM <= 5",
			"SELECT * FROM t WHERE ROWNUM <= 5",
			0,
		},
		{
			"existing fetch first untouched",
			"SELECT * FROM t ORDER BY id FETCH FIRST 10 ROWS ONLY",
			"SELECT * FROM t ORDER BY id FETCH FIRST 10 ROWS ONLY",
			0,
		},
		{
			"trailing semicolon trimmed before cap",
			"SELECT * FROM t;",
			"SELECT * FROM t WHERE ROWNUM <= 100",
			100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Validate(tt.sql)
			if !got.Admitted {
				t.Fatalf("Validate(%q) rejected: %q", tt.sql, got.Reason)
			}
			if got.EffectiveSQL != tt.wantSQL {
				t.Errorf("effective SQL = %q, want %q", got.EffectiveSQL, tt.wantSQL)
			}
			if got.AppliedRowCap != tt.wantCap {
				t.Errorf("applied row cap = %d, want %d", got.AppliedRowCap, tt.wantCap)
			}
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name         string
		sql          string
		wantContains string
	}{
		{"distinct warning", "SELECT DISTINCT x FROM t", "DISTINCT"},
		{"leading wildcard warning", "SELECT * FROM t WHERE name LIKE '%x'", "wildcard"},
		{"multi-table warning", "SELECT * FROM a JOIN b ON a.id = b.id WHERE a.x = 1", "tables"},
		{"subquery warning", "SELECT * FROM (SELECT x FROM t)", "subquery"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Validate(tt.sql)
			if !got.Admitted {
				t.Fatalf("Validate(%q) rejected: %q", tt.sql, got.Reason)
			}
			found := false
			for _, w := range got.Warnings {
				if strings.Contains(w, tt.wantContains) {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("warnings %v contain nothing matching %q", got.Warnings, tt.wantContains)
			}
		})
	}

	// A warning never blocks admission.
	if got := v.Validate("SELECT DISTINCT x FROM t"); !got.Admitted || len(got.Warnings) == 0 {
		t.Errorf("warned query should still be admitted with warnings, got admitted=%v warnings=%v", got.Admitted, got.Warnings)
	}
}
