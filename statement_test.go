package mysqlr

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// TestSyntaxString ensures Syntax.String() returns expected values.
func TestSyntaxString(t *testing.T) {
	tests := []struct {
		in   Syntax
		want string
	}{
		{AliasSyntax, "alias"},
		{ValuesSyntax, "values"},
		{Syntax(-1), "unknown"},
		{Syntax(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Fatalf("Syntax(%d).String() = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildUpsert(t *testing.T) {
	tests := []struct {
		name  string
		b     Builder
		table string
		cols  []string
		keys  []string
		onDup string
		want  string
	}{
		{
			name:  "single key",
			table: "t",
			cols:  []string{"a", "b", "c"},
			keys:  []string{"a"},
			want:  "insert into t (a,b,c) values (%s,%s,%s) as vals on duplicate key update b=vals.b,c=vals.c",
		},
		{
			name:  "composite key keeps column order",
			table: "pv",
			cols:  []string{"ss_id", "ts", "kw", "mwh"},
			keys:  []string{"ts", "ss_id"},
			want:  "insert into pv (ss_id,ts,kw,mwh) values (%s,%s,%s,%s) as vals on duplicate key update kw=vals.kw,mwh=vals.mwh",
		},
		{
			name:  "no keys updates everything",
			table: "t",
			cols:  []string{"a", "b"},
			want:  "insert into t (a,b) values (%s,%s) as vals on duplicate key update a=vals.a,b=vals.b",
		},
		{
			name:  "override clause is used verbatim",
			table: "t",
			cols:  []string{"a", "b"},
			keys:  []string{"a"},
			onDup: "b=b+vals.b",
			want:  "insert into t (a,b) values (%s,%s) as vals on duplicate key update b=b+vals.b",
		},
		{
			name:  "all columns are keys yields an empty clause",
			table: "t",
			cols:  []string{"a"},
			keys:  []string{"a"},
			want:  "insert into t (a) values (%s) as vals on duplicate key update ",
		},
		{
			name:  "question mark placeholders",
			b:     Builder{Placeholder: "?"},
			table: "t",
			cols:  []string{"a", "b"},
			keys:  []string{"a"},
			want:  "insert into t (a,b) values (?,?) as vals on duplicate key update b=vals.b",
		},
		{
			name:  "values syntax has no row alias",
			b:     Builder{Syntax: ValuesSyntax, Placeholder: "?"},
			table: "mytable",
			cols:  []string{"a", "b", "c"},
			keys:  []string{"a"},
			want:  "insert into mytable (a,b,c) values (?,?,?) on duplicate key update b=VALUES(b),c=VALUES(c)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.b.BuildUpsert(tt.table, tt.cols, tt.keys, tt.onDup); got != tt.want {
				t.Fatalf("BuildUpsert()\n got=%q\nwant=%q", got, tt.want)
			}
		})
	}
}

// TestBuildUpsert_PackageLevelMatchesZeroBuilder checks the package helpers
// use the zero Builder.
func TestBuildUpsert_PackageLevelMatchesZeroBuilder(t *testing.T) {
	got := BuildUpsert("t", []string{"a", "b", "c"}, []string{"a"}, "")
	want := "insert into t (a,b,c) values (%s,%s,%s) as vals on duplicate key update b=vals.b,c=vals.c"
	if got != want {
		t.Fatalf("got=%q\nwant=%q", got, want)
	}
}

// TestBuildUpsert_UpdateClauseIsColsMinusKeys verifies the update clause lists
// exactly the non-key columns in their original relative order.
func TestBuildUpsert_UpdateClauseIsColsMinusKeys(t *testing.T) {
	cols := []string{"c0", "c1", "c2", "c3", "c4", "c5"}
	keySets := [][]string{
		{"c0"},
		{"c5", "c1"},
		{"c2", "c3", "c4"},
		{"c0", "c1", "c2", "c3", "c4"},
	}
	for _, keys := range keySets {
		got := BuildUpsert("t", cols, keys, "")
		_, clause, ok := strings.Cut(got, " on duplicate key update ")
		if !ok {
			t.Fatalf("no update clause in %q", got)
		}

		var want []string
		for _, c := range cols {
			isKey := false
			for _, k := range keys {
				isKey = isKey || k == c
			}
			if !isKey {
				want = append(want, c+"=vals."+c)
			}
		}
		if clause != strings.Join(want, ",") {
			t.Fatalf("keys=%v: clause=%q, want %q", keys, clause, strings.Join(want, ","))
		}
	}
}

func TestBuildOnDuplicateClause(t *testing.T) {
	if got := BuildOnDuplicateClause(nil); got != "" {
		t.Fatalf("BuildOnDuplicateClause(nil) = %q, want empty", got)
	}
	if got := BuildOnDuplicateClause([]string{}); got != "" {
		t.Fatalf("BuildOnDuplicateClause([]) = %q, want empty", got)
	}
	if got, want := BuildOnDuplicateClause([]string{"a", "b", "c"}), "a=vals.a,b=vals.b,c=vals.c"; got != want {
		t.Fatalf("got=%q, want %q", got, want)
	}
	vb := Builder{Syntax: ValuesSyntax}
	if got, want := vb.BuildOnDuplicateClause([]string{"a", "b", "c"}), "a=VALUES(a),b=VALUES(b),c=VALUES(c)"; got != want {
		t.Fatalf("got=%q, want %q", got, want)
	}
}

func TestBuildInsertSelectUpsert(t *testing.T) {
	colmap := []ColumnPair{
		{From: "s0", Into: "d0"},
		{From: "s1", Into: "d1"},
		{From: "s2*2", Into: "d2"},
	}
	got := BuildInsertSelectUpsert("t0", "t1", colmap, []string{"d0"})
	want := "insert into t1 (d0,d1,d2) select * from (select s0,s1,s2*2 from t0) as vals(alias0,alias1,alias2) on duplicate key update d1=vals.alias1,d2=vals.alias2"
	if got != want {
		t.Fatalf("got=%q\nwant=%q", got, want)
	}
}

// TestBuildInsertSelectUpsert_ReorderKeepsAlignment checks that reordering the
// column map moves the aliases with it while the insert list and the select
// list stay aligned position by position.
func TestBuildInsertSelectUpsert_ReorderKeepsAlignment(t *testing.T) {
	colmap := []ColumnPair{
		{From: "s2*2", Into: "d2"},
		{From: "s0", Into: "d0"},
		{From: "s1", Into: "d1"},
	}
	got := BuildInsertSelectUpsert("t0", "t1", colmap, []string{"d0"})
	want := "insert into t1 (d2,d0,d1) select * from (select s2*2,s0,s1 from t0) as vals(alias0,alias1,alias2) on duplicate key update d2=vals.alias0,d1=vals.alias2"
	if got != want {
		t.Fatalf("got=%q\nwant=%q", got, want)
	}

	mustContainInOrder(t, got, "(d2,d0,d1)", "select s2*2,s0,s1", "vals(alias0,alias1,alias2)")
}

func TestBuildInsertSelectUpsert_SameUnderValuesSyntax(t *testing.T) {
	colmap := []ColumnPair{{From: "a", Into: "b"}, {From: "c", Into: "d"}}
	alias := Builder{}.BuildInsertSelectUpsert("f", "i", colmap, []string{"b"})
	values := Builder{Syntax: ValuesSyntax}.BuildInsertSelectUpsert("f", "i", colmap, []string{"b"})
	if alias != values {
		t.Fatalf("syntaxes differ:\nalias =%q\nvalues=%q", alias, values)
	}
}

func TestBuilder_DebugLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	b := Builder{Logger: zap.New(core)}

	b.BuildUpsert("t", []string{"a", "b"}, []string{"a"}, "")
	if logs.FilterMessage("built upsert statement").Len() != 1 {
		t.Fatalf("expected one upsert debug entry, got %v", logs.AllUntimed())
	}
	entry := logs.FilterMessage("built upsert statement").All()[0]
	if entry.ContextMap()["table"] != "t" {
		t.Fatalf("table field = %v", entry.ContextMap()["table"])
	}
}

// mustContainInOrder asserts that subs appear in s in the given order.
func mustContainInOrder(t *testing.T, s string, subs ...string) {
	t.Helper()
	pos := 0
	for _, sub := range subs {
		i := strings.Index(s[pos:], sub)
		if i < 0 {
			t.Fatalf("substring not found (in order) %q\nTEXT:\n%s", sub, s)
		}
		pos += i + len(sub)
	}
}
