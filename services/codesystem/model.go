package codesystem

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rohitjsoftype/terminology-api/backends/db/termsql"
)

// CodeSystem is the resource-level view of a code system as the import
// engine needs it: identity, the property code that designates hierarchy,
// and the declared property definitions.
type CodeSystem struct {
	ID               uuid.UUID
	URL              string
	Version          string
	Name             string
	Title            string
	Status           string
	Content          string
	HierarchyMeaning string
	Property         []PropertyDefinition
}

// PropertyDefinition is one declared property of a code system. Type "code"
// marks a relationship property; any other type marks a plain attribute.
type PropertyDefinition struct {
	Code        string `json:"code"`
	URI         string `json:"uri,omitempty"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// FindProperty returns the declared definition with the given code, or nil.
func (cs *CodeSystem) FindProperty(code string) *PropertyDefinition {
	for i := range cs.Property {
		if cs.Property[i].Code == code {
			return &cs.Property[i]
		}
	}

	return nil
}

// ToFHIR renders the resource as FHIR CodeSystem JSON. Used as the `return`
// parameter of the import operation.
func (cs *CodeSystem) ToFHIR() map[string]interface{} {
	resource := map[string]interface{}{
		"resourceType": "CodeSystem",
		"id":           cs.ID.String(),
		"url":          cs.URL,
	}

	if cs.Version != "" {
		resource["version"] = cs.Version
	}

	if cs.Name != "" {
		resource["name"] = cs.Name
	}

	if cs.Title != "" {
		resource["title"] = cs.Title
	}

	if cs.Status != "" {
		resource["status"] = cs.Status
	}

	if cs.Content != "" {
		resource["content"] = cs.Content
	}

	if cs.HierarchyMeaning != "" {
		resource["hierarchyMeaning"] = cs.HierarchyMeaning
	}

	if len(cs.Property) > 0 {
		props := make([]map[string]interface{}, 0, len(cs.Property))

		for _, p := range cs.Property {
			prop := map[string]interface{}{
				"code": p.Code,
				"type": p.Type,
			}

			if p.URI != "" {
				prop["uri"] = p.URI
			}

			if p.Description != "" {
				prop["description"] = p.Description
			}

			props = append(props, prop)
		}

		resource["property"] = props
	}

	return resource
}

func fromRow(row termsql.CodeSystem) (*CodeSystem, error) {
	cs := &CodeSystem{
		ID:               row.ID,
		URL:              row.Url,
		Version:          row.Version.String,
		Name:             row.Name.String,
		Title:            row.Title.String,
		Status:           row.Status.String,
		Content:          row.Content.String,
		HierarchyMeaning: row.HierarchyMeaning.String,
	}

	if len(row.Property) > 0 {
		if err := json.Unmarshal(row.Property, &cs.Property); err != nil {
			return nil, errors.Wrap(err, "failed to decode property definitions")
		}
	}

	return cs, nil
}
