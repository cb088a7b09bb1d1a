package fhir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohitjsoftype/terminology-api/services/importer"
)

func TestParseImportParameters(t *testing.T) {
	body := `{
		"resourceType": "Parameters",
		"parameter": [
			{"name": "system", "valueUri": "http://ex/cs"},
			{"name": "concept", "valueCoding": {"code": "A", "display": "Alpha"}},
			{"name": "concept", "valueCoding": {"code": "B"}},
			{"name": "property", "part": [
				{"name": "code", "valueCode": "B"},
				{"name": "property", "valueCode": "parent"},
				{"name": "value", "valueString": "A"}
			]}
		]
	}`

	req, err := ParseImportParameters([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, "http://ex/cs", req.System)
	assert.Equal(t, []importer.Concept{
		{Code: "A", Display: "Alpha"},
		{Code: "B"},
	}, req.Concepts)
	assert.Equal(t, []importer.ImportedProperty{
		{Code: "B", Property: "parent", Value: "A"},
	}, req.Properties)
}

func TestParseImportParametersPartValueForms(t *testing.T) {
	// Medplum-style clients send part values as valueCode or valueString;
	// both are accepted.
	body := `{
		"resourceType": "Parameters",
		"parameter": [
			{"name": "system", "valueUri": "http://ex/cs"},
			{"name": "property", "part": [
				{"name": "code", "valueString": "B"},
				{"name": "property", "valueString": "severity"},
				{"name": "value", "valueString": "high"}
			]}
		]
	}`

	req, err := ParseImportParameters([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, []importer.ImportedProperty{
		{Code: "B", Property: "severity", Value: "high"},
	}, req.Properties)
}

func TestParseImportParametersErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"wrong resource type", `{"resourceType": "Bundle"}`},
		{"missing system", `{"resourceType": "Parameters", "parameter": []}`},
		{
			"two systems",
			`{"resourceType": "Parameters", "parameter": [
				{"name": "system", "valueUri": "http://a"},
				{"name": "system", "valueUri": "http://b"}
			]}`,
		},
		{
			"concept without coding",
			`{"resourceType": "Parameters", "parameter": [
				{"name": "system", "valueUri": "http://ex/cs"},
				{"name": "concept"}
			]}`,
		},
		{
			"property missing value part",
			`{"resourceType": "Parameters", "parameter": [
				{"name": "system", "valueUri": "http://ex/cs"},
				{"name": "property", "part": [
					{"name": "code", "valueCode": "B"},
					{"name": "property", "valueCode": "parent"}
				]}
			]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseImportParameters([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestParseImportParametersConceptsOnly(t *testing.T) {
	body := `{
		"resourceType": "Parameters",
		"parameter": [
			{"name": "system", "valueUri": "http://ex/cs"},
			{"name": "concept", "valueCoding": {"code": "A"}}
		]
	}`

	req, err := ParseImportParameters([]byte(body))
	require.NoError(t, err)
	assert.Len(t, req.Concepts, 1)
	assert.Empty(t, req.Properties)
}

func TestErrorOutcome(t *testing.T) {
	outcome := ErrorOutcome("invalid", "Unknown property: foo")

	assert.Equal(t, "OperationOutcome", outcome["resourceType"])

	issues, ok := outcome["issue"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, issues, 1)
	assert.Equal(t, "error", issues[0]["severity"])
	assert.Equal(t, "invalid", issues[0]["code"])
	assert.Equal(t, "Unknown property: foo", issues[0]["diagnostics"])
}
