package fhir

// ErrorOutcome renders an OperationOutcome with severity error and the given
// human-readable diagnostic.
func ErrorOutcome(code, diagnostics string) map[string]interface{} {
	return map[string]interface{}{
		"resourceType": "OperationOutcome",
		"issue": []map[string]interface{}{
			{
				"severity":    "error",
				"code":        code,
				"diagnostics": diagnostics,
			},
		},
	}
}
