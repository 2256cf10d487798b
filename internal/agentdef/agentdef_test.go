package agentdef

import (
	"errors"
	"strings"
	"testing"
)

func testSettings() Settings {
	return Settings{ProjectID: "diet-nav", DatasetName: "usda_food_data", Model: "gemini-2.5-flash"}
}

func TestCatalogWiring(t *testing.T) {
	t.Parallel()

	defs, err := Catalog(testSettings())
	if err != nil {
		t.Fatalf("Catalog failed: %v", err)
	}
	if len(defs) != 4 {
		t.Fatalf("expected 4 definitions, got %d", len(defs))
	}

	router, err := Lookup(defs, RouterName)
	if err != nil {
		t.Fatalf("Lookup router failed: %v", err)
	}
	for _, sub := range router.SubAgents {
		if _, err := Lookup(defs, sub); err != nil {
			t.Fatalf("router references unknown sub-agent %q", sub)
		}
	}
}

func TestBigQueryInstruction(t *testing.T) {
	t.Parallel()

	defs, _ := Catalog(testSettings())
	bq, err := Lookup(defs, BigQueryName)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if !bq.ReadOnly || len(bq.Tools) != 1 || bq.Tools[0] != ToolBigQuery {
		t.Fatalf("unexpected bigquery agent tools %+v", bq)
	}
	for _, want := range []string{
		"`diet-nav.usda_food_data`",
		"`diet-nav.usda_food_data.<table>`",
		"- food(fdc_id INT64, data_type STRING, description STRING, food_category_id INT64, publication_date DATE)",
		"SELECT-only",
	} {
		if !strings.Contains(bq.Instruction, want) {
			t.Fatalf("instruction missing %q:\n%s", want, bq.Instruction)
		}
	}
}

func TestAllergenGeneration(t *testing.T) {
	t.Parallel()

	defs, _ := Catalog(testSettings())
	a, _ := Lookup(defs, AllergenName)
	g := a.Generation
	if g == nil || g.Temperature == nil || g.TopP == nil {
		t.Fatal("expected generation config")
	}
	if *g.Temperature != 0.6 || *g.TopP != 0.9 || g.MaxOutputTokens != 32768 {
		t.Fatalf("unexpected generation config temp=%v topP=%v max=%d", *g.Temperature, *g.TopP, g.MaxOutputTokens)
	}
}

func TestSchema(t *testing.T) {
	t.Parallel()

	tables, err := Schema()
	if err != nil {
		t.Fatalf("Schema failed: %v", err)
	}
	if len(tables) != 24 {
		t.Fatalf("expected 24 tables, got %d", len(tables))
	}
	for _, tbl := range tables {
		if tbl.Name == "" || len(tbl.Fields) == 0 {
			t.Fatalf("incomplete table %+v", tbl)
		}
	}
}

func TestCatalogRequiresSettings(t *testing.T) {
	t.Parallel()

	if _, err := Catalog(Settings{}); err == nil {
		t.Fatal("expected error for empty settings")
	}
	if _, err := Lookup(nil, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
