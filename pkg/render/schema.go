package render

import (
	_ "embed"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed report-schema.json
var reportSchema []byte

// ValidationResult is the outcome of validating a JSON report.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Schema returns the JSON schema of reports written by JSON.
func Schema() []byte {
	return reportSchema
}

// ValidateReportJSON checks data against the report schema.
func ValidateReportJSON(data []byte) (ValidationResult, error) {
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(reportSchema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return ValidationResult{}, fmt.Errorf("validate report: %w", err)
	}

	out := ValidationResult{Valid: result.Valid()}
	for _, verr := range result.Errors() {
		out.Errors = append(out.Errors, fmt.Sprintf("%s: %s", verr.Field(), verr.Description()))
	}

	return out, nil
}
