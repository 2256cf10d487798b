// Package agentdef describes the agents deployed behind the runtime: a
// router plus its BigQuery, allergen and image helpers.
package agentdef

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"google.golang.org/genai"
)

// Agent names as registered with the runtime.
const (
	RouterName   = "main_agent"
	BigQueryName = "usda_food_information_bigquery_agent"
	AllergenName = "allergy_research_agent"
	ImageName    = "image_agent"
)

// ToolBigQuery names the read-only BigQuery toolset.
const ToolBigQuery = "bigquery_toolset"

// Definition is the configuration of one deployed agent.
type Definition struct {
	Name        string                       `json:"name"`
	Description string                       `json:"description"`
	Model       string                       `json:"model"`
	Instruction string                       `json:"-"`
	Tools       []string                     `json:"tools"`
	SubAgents   []string                     `json:"sub_agents"`
	ReadOnly    bool                         `json:"read_only,omitempty"`
	Generation  *genai.GenerateContentConfig `json:"generation,omitempty"`
}

// Settings feed the templated parts of the definitions.
type Settings struct {
	ProjectID   string
	DatasetName string
	Model       string
}

// ErrNotFound is returned by Lookup for unknown names.
var ErrNotFound = errors.New("agent definition not found")

// Column is one column of a USDA table.
type Column struct {
	Name     string `json:"column_name"`
	DataType string `json:"data_type"`
}

// Table is one table of the USDA dataset.
type Table struct {
	Name   string   `json:"table_name"`
	Fields []Column `json:"fields"`
}

//go:embed schema.json
var schemaJSON []byte

// Schema returns the USDA dataset schema the BigQuery agent is told about.
func Schema() ([]Table, error) {
	var tables []Table
	if err := json.Unmarshal(schemaJSON, &tables); err != nil {
		return nil, fmt.Errorf("decode dataset schema: %w", err)
	}
	return tables, nil
}

const routerInstruction = `You are a friendly food and nutrition agent.
Answer questions related to food, nutrition, allergies, dietary health, and other inquiries related to these things.
You have helper agents.
- The usda_food_information_bigquery_agent has access to a large database from the USDA containing all sorts of food-related information.
- The allergy_research_agent can research allergy-related information.
- The image_agent can describe food in attached photos.`

const allergenInstruction = `You are an allergen researcher.
Also, use your own knowledge about allergies and health.`

const imageInstruction = `You are a vision-capable food analyst.
When the user attaches a photo, identify the foods and ingredients you can see and estimate portion sizes.
Point out common allergens that are likely present.`

var bigQueryInstruction = template.Must(template.New("bigquery").Parse(`You are a data analysis agent with access to BigQuery tools.
The dataset you have access to contains information from the USDA about foods and nutrition.
Only query the dataset ` + "`{{.ProjectID}}.{{.DatasetName}}`" + `.
Fully qualify every table as ` + "`{{.ProjectID}}.{{.DatasetName}}.<table>`" + `.
Never perform DDL/DML; SELECT-only. Return the SQL you ran along with a concise answer.
Here is the database schema, please study it:
{{range .Tables}}- {{.Name}}({{range $i, $c := .Fields}}{{if $i}}, {{end}}{{$c.Name}} {{$c.DataType}}{{end}})
{{end}}`))

// Catalog builds every agent definition for s.
func Catalog(s Settings) ([]Definition, error) {
	if s.ProjectID == "" || s.DatasetName == "" {
		return nil, errors.New("agent catalog requires project id and dataset name")
	}
	if s.Model == "" {
		s.Model = "gemini-2.5-flash"
	}

	tables, err := Schema()
	if err != nil {
		return nil, err
	}
	var instr strings.Builder
	if err := bigQueryInstruction.Execute(&instr, struct {
		Settings
		Tables []Table
	}{s, tables}); err != nil {
		return nil, fmt.Errorf("render bigquery instruction: %w", err)
	}

	return []Definition{
		{
			Name:        RouterName,
			Description: "Provides answers to users' food and allergy questions.",
			Model:       s.Model,
			Instruction: routerInstruction,
			Tools:       []string{},
			SubAgents:   []string{BigQueryName, AllergenName, ImageName},
		},
		{
			Name:        BigQueryName,
			Description: "Analyzes tables in a BigQuery dataset that contains food information from the USDA.",
			Model:       s.Model,
			Instruction: instr.String(),
			Tools:       []string{ToolBigQuery},
			SubAgents:   []string{},
			ReadOnly:    true,
		},
		{
			Name:        AllergenName,
			Description: "Answers questions about allergies and related health concerns.",
			Model:       s.Model,
			Instruction: allergenInstruction,
			Tools:       []string{},
			SubAgents:   []string{},
			Generation: &genai.GenerateContentConfig{
				Temperature:     genai.Ptr[float32](0.6),
				TopP:            genai.Ptr[float32](0.9),
				MaxOutputTokens: 32768,
			},
		},
		{
			Name:        ImageName,
			Description: "Describes foods and likely allergens in attached photos.",
			Model:       s.Model,
			Instruction: imageInstruction,
			Tools:       []string{},
			SubAgents:   []string{},
		},
	}, nil
}

// Lookup returns the definition called name.
func Lookup(defs []Definition, name string) (Definition, error) {
	for _, d := range defs {
		if d.Name == name {
			return d, nil
		}
	}
	return Definition{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}
