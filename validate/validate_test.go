package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rohitjsoftype/terminology-api/services/importer"
)

func validRequest() *importer.Request {
	return &importer.Request{
		System: "http://ex/cs",
		Concepts: []importer.Concept{
			{Code: "A", Display: "Alpha"},
		},
		Properties: []importer.ImportedProperty{
			{Code: "A", Property: "parent", Value: "B"},
		},
	}
}

func TestImportRequest(t *testing.T) {
	assert.NoError(t, ImportRequest(validRequest()))
}

func TestImportRequestErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*importer.Request)
	}{
		{"empty system", func(r *importer.Request) { r.System = "" }},
		{"whitespace in system", func(r *importer.Request) { r.System = "http://ex /cs" }},
		{"empty concept code", func(r *importer.Request) { r.Concepts[0].Code = "" }},
		{"empty property code", func(r *importer.Request) { r.Properties[0].Code = "" }},
		{"empty property name", func(r *importer.Request) { r.Properties[0].Property = "" }},
		{"empty property value", func(r *importer.Request) { r.Properties[0].Value = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)
			assert.Error(t, ImportRequest(req))
		})
	}

	assert.Error(t, ImportRequest(nil))
}

func TestImportRequestEmptyBatch(t *testing.T) {
	// A batch with neither concepts nor properties is shape-valid; the
	// operation degenerates to resolving the code system.
	req := &importer.Request{System: "http://ex/cs"}
	assert.NoError(t, ImportRequest(req))
}
