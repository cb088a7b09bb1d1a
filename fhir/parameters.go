// Package fhir holds the small FHIR wire shapes the service speaks at its
// seams: the Parameters payload of the import operation and OperationOutcome
// responses.
package fhir

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/rohitjsoftype/terminology-api/services/importer"
)

type Parameters struct {
	ResourceType string      `json:"resourceType"`
	Parameter    []Parameter `json:"parameter,omitempty"`
}

type Parameter struct {
	Name        string      `json:"name"`
	ValueUri    string      `json:"valueUri,omitempty"`
	ValueCode   string      `json:"valueCode,omitempty"`
	ValueString string      `json:"valueString,omitempty"`
	ValueCoding *Coding     `json:"valueCoding,omitempty"`
	Part        []Parameter `json:"part,omitempty"`
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// ParseImportParameters decodes the body of a CodeSystem $import call:
// `system` (uri, exactly one), `concept` codings and `property` part groups
// of {code, property, value}. The caller attaches the principal.
func ParseImportParameters(data []byte) (*importer.Request, error) {
	params := &Parameters{}

	if err := json.Unmarshal(data, params); err != nil {
		return nil, errors.Wrap(err, "failed to parse Parameters resource")
	}

	if params.ResourceType != "Parameters" {
		return nil, errors.Errorf("expected Parameters resource, got %q", params.ResourceType)
	}

	req := &importer.Request{}
	systems := 0

	for _, param := range params.Parameter {
		switch param.Name {
		case "system":
			systems++
			req.System = param.ValueUri
		case "concept":
			if param.ValueCoding == nil {
				return nil, errors.New("concept parameter requires a valueCoding")
			}

			req.Concepts = append(req.Concepts, importer.Concept{
				Code:    param.ValueCoding.Code,
				Display: param.ValueCoding.Display,
			})
		case "property":
			prop, err := parsePropertyParts(param.Part)
			if err != nil {
				return nil, err
			}

			req.Properties = append(req.Properties, prop)
		}
	}

	if systems != 1 || req.System == "" {
		return nil, errors.New("exactly one system parameter with a valueUri is required")
	}

	return req, nil
}

func parsePropertyParts(parts []Parameter) (importer.ImportedProperty, error) {
	prop := importer.ImportedProperty{}

	for _, part := range parts {
		value := part.ValueCode
		if value == "" {
			value = part.ValueString
		}

		switch part.Name {
		case "code":
			prop.Code = value
		case "property":
			prop.Property = value
		case "value":
			prop.Value = value
		}
	}

	if prop.Code == "" || prop.Property == "" || prop.Value == "" {
		return prop, errors.New("property parameter requires code, property and value parts")
	}

	return prop, nil
}
