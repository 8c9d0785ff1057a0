package jobs_test

import (
	"testing"

	"gridflow/internal/jobs"
	"gridflow/internal/queue"
)

func TestParseDefinition(t *testing.T) {
	doc := []byte(`
id = "job-2026-001"
label = "North Atlantic subsets"

[spec]
REGION = "north_atlantic"
YEARS = [2020, 2021]

[[tasks]]
name = "subset_sst"
type = "subset"
[tasks.spec]
VARIABLE = ["sst"]
RESOLUTION = 0.25

[[tasks]]
name = "regrid_sst"
type = "regrid"
`)

	def, err := jobs.ParseDefinition(doc)
	if err != nil {
		t.Fatalf("ParseDefinition: %v", err)
	}
	if def.ID != "job-2026-001" || def.Label != "North Atlantic subsets" {
		t.Fatalf("unexpected header: %+v", def)
	}

	if v, _ := def.Spec.Get("REGION"); v != "north_atlantic" {
		t.Fatalf("REGION = %v", v)
	}
	if v, _ := def.Spec.Get("YEARS"); queue.EnvValue(v) != "2020,2021" {
		t.Fatalf("YEARS = %v", v)
	}

	if len(def.Tasks) != 2 {
		t.Fatalf("parsed %d tasks, want 2", len(def.Tasks))
	}
	first := def.Tasks[0]
	if first.Name != "subset_sst" || first.Type != queue.TaskTypeSubset {
		t.Fatalf("unexpected first task: %+v", first)
	}
	if v, _ := first.Spec.Get("RESOLUTION"); v != 0.25 {
		t.Fatalf("RESOLUTION = %v (%T)", v, v)
	}
	if v, _ := first.Spec.Get("VARIABLE"); queue.EnvValue(v) != "sst" {
		t.Fatalf("VARIABLE = %v", v)
	}
	if def.Tasks[1].Type != queue.TaskTypeRegrid {
		t.Fatalf("second task type = %q", def.Tasks[1].Type)
	}
}

func TestParseDefinitionSortsSpecParameters(t *testing.T) {
	doc := []byte(`
id = "j"
[spec]
ZULU = "z"
ALPHA = "a"
MIKE = "m"
`)
	def, err := jobs.ParseDefinition(doc)
	if err != nil {
		t.Fatalf("ParseDefinition: %v", err)
	}
	var names []string
	for _, p := range def.Spec {
		names = append(names, p.Name)
	}
	if len(names) != 3 || names[0] != "ALPHA" || names[1] != "MIKE" || names[2] != "ZULU" {
		t.Fatalf("parameters not sorted: %v", names)
	}
}

func TestParseDefinitionRejectsNestedTables(t *testing.T) {
	doc := []byte(`
id = "j"
[spec]
[spec.nested]
x = 1
`)
	if _, err := jobs.ParseDefinition(doc); err == nil {
		t.Fatal("expected rejection of nested spec tables")
	}
}

func TestParseDefinitionInvalidTOML(t *testing.T) {
	if _, err := jobs.ParseDefinition([]byte("id = ")); err == nil {
		t.Fatal("expected parse error")
	}
}
