package validate

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/rohitjsoftype/terminology-api/services/importer"
)

// ImportRequest checks the shape of an import batch before it reaches the
// engine. The engine trusts its input past this point.
func ImportRequest(req *importer.Request) error {
	if req == nil {
		return errors.New("import request cannot be nil")
	}

	if req.System == "" {
		return errors.New("system cannot be empty")
	}

	if strings.ContainsAny(req.System, " \t\n") {
		return fmt.Errorf("system must be a uri without whitespace: %q", req.System)
	}

	for idx, concept := range req.Concepts {
		if err := Concept(concept); err != nil {
			return errors.Wrapf(err, "unable to validate concept at index %d", idx)
		}
	}

	for idx, prop := range req.Properties {
		if err := ImportedProperty(prop); err != nil {
			return errors.Wrapf(err, "unable to validate property at index %d", idx)
		}
	}

	return nil
}

func Concept(concept importer.Concept) error {
	if concept.Code == "" {
		return errors.New("concept code cannot be empty")
	}

	return nil
}

func ImportedProperty(prop importer.ImportedProperty) error {
	if prop.Code == "" {
		return errors.New("property code cannot be empty")
	}

	if prop.Property == "" {
		return errors.New("property name cannot be empty")
	}

	if prop.Value == "" {
		return errors.New("property value cannot be empty")
	}

	return nil
}
