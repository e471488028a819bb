package cql

import (
	"reflect"
	"testing"

	"docquery/internal/codec"
	"docquery/internal/filter"

	"github.com/google/uuid"
)

func lowered(t *testing.T, input string) filter.DNF {
	t.Helper()
	root, err := filter.Build([]byte(input))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := filter.Validate(root, filter.DefaultLimits()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	dnf, err := filter.Lower(root, filter.DefaultLimits())
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	return dnf
}

func TestAssemble(t *testing.T) {
	asm := Assembler{Keyspace: "ks", Table: "docs"}
	dnf := lowered(t, `{"name": "bob", "age": {"$gte": 18}, "tags": {"$exists": true}}`)

	sel, usage, err := asm.Assemble(dnf.Branches[0], SelectOptions{Limit: 20})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	wantCQL := `SELECT key, tx_id, doc_json FROM "ks"."docs" WHERE array_contains CONTAINS ? AND query_dbl_values[?] >= ? AND exist_keys CONTAINS ? LIMIT 20`
	if got := sel.CQL(); got != wantCQL {
		t.Errorf("CQL()\n got: %s\nwant: %s", got, wantCQL)
	}

	vals := sel.Values()
	if len(vals) != 4 || vals[0] != "name Sbob" || vals[1] != "age" || vals[3] != "tags" {
		t.Errorf("Values() = %v", vals)
	}

	want := UseArrayContains | UseNumberValues | UseExistKeys
	if usage != want {
		t.Errorf("usage = %s, want %s", usage, want)
	}
	if usage.Has(UsePrimaryKey) || !usage.Secondary() {
		t.Errorf("usage flags wrong: %s", usage)
	}
}

func TestAssembleAllSingleElementAll(t *testing.T) {
	asm := Assembler{Table: "docs"}
	stmts, usages, err := asm.AssembleAll(lowered(t, `{"tags": {"$all": ["x"]}}`), SelectOptions{})
	if err != nil {
		t.Fatalf("AssembleAll: %v", err)
	}
	if len(stmts) != 1 || len(stmts[0].Where) != 1 {
		t.Fatalf("want one statement with one predicate, got %v", stmts)
	}
	if p := stmts[0].Where[0]; p.Column != ColArrayContains || p.Op != OpContains || p.Value != "tags Sx" {
		t.Errorf("predicate = %+v", p)
	}
	if usages[0] != UseArrayContains {
		t.Errorf("usage = %s", usages[0])
	}
	if got := stmts[0].CQL(); got != `SELECT key, tx_id, doc_json FROM "docs" WHERE array_contains CONTAINS ?` {
		t.Errorf("CQL() = %s", got)
	}
}

func TestAssembleOrProducesOneStatementPerBranch(t *testing.T) {
	asm := Assembler{Keyspace: "ks", Table: "docs"}
	stmts, _, err := asm.AssembleAll(lowered(t, `{"a": 1, "$or": [{"b": 2}, {"c": 3}]}`), SelectOptions{})
	if err != nil {
		t.Fatalf("AssembleAll: %v", err)
	}
	if len(stmts) != 2 {
		t.Fatalf("got %d statements, want 2", len(stmts))
	}
	for i, want := range [][]any{{"a N1", "b N2"}, {"a N1", "c N3"}} {
		if got := stmts[i].Values(); !reflect.DeepEqual(got, want) {
			t.Errorf("stmts[%d].Values() = %v, want %v", i, got, want)
		}
	}
}

func TestAssembleIdentity(t *testing.T) {
	asm := Assembler{Keyspace: "ks", Table: "docs"}
	dnf := lowered(t, `{"_id": "d1", "a": 1}`)
	sel, usage, err := asm.Assemble(dnf.Branches[0], SelectOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !usage.Has(UsePrimaryKey | UseArrayContains) {
		t.Errorf("usage = %s", usage)
	}
	if sel.Values()[0] != (codec.Key{Type: codec.KeyString, Text: "d1"}) {
		t.Errorf("first bind = %#v", sel.Values()[0])
	}
}

func TestAllowFilteringCopy(t *testing.T) {
	sel := Select{Table: "t", Columns: []string{ColKey}}
	af := sel.WithAllowFiltering()
	if sel.AllowFiltering {
		t.Error("WithAllowFiltering mutated the receiver")
	}
	if got := af.CQL(); got != `SELECT key FROM "t" ALLOW FILTERING` {
		t.Errorf("CQL() = %s", got)
	}
}

func TestWriteStatements(t *testing.T) {
	key := codec.Key{Type: codec.KeyString, Text: "d1"}
	tx := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	ins := Insert{Keyspace: "ks", Table: "docs", Columns: []string{ColKey, ColTxID, ColDocJSON}, Bind: []any{key, tx, "{}"}, IfNotExists: true}
	if got := ins.CQL(); got != `INSERT INTO "ks"."docs" (key, tx_id, doc_json) VALUES (?, ?, ?) IF NOT EXISTS` {
		t.Errorf("Insert.CQL() = %s", got)
	}

	del := Delete{Keyspace: "ks", Table: "docs", Key: key, IfTxID: &tx}
	if got := del.CQL(); got != `DELETE FROM "ks"."docs" WHERE key = ? IF tx_id = ?` {
		t.Errorf("Delete.CQL() = %s", got)
	}
	if vals := del.Values(); len(vals) != 2 || vals[1] != tx {
		t.Errorf("Delete.Values() = %v", vals)
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := tableName("", `we"ird`); got != `"we""ird"` {
		t.Errorf("tableName = %s", got)
	}
}

func TestIndexUsageString(t *testing.T) {
	if got := IndexUsage(0).String(); got != "none" {
		t.Errorf("zero usage = %q", got)
	}
	u := UsePrimaryKey.Union(UseArraySize)
	if got := u.String(); got != "primary_key,array_size" {
		t.Errorf("String() = %q", got)
	}
	if u.Secondary() != true || UsePrimaryKey.Secondary() {
		t.Error("Secondary() wrong")
	}
}
