package gen

import (
	"context"
	"regexp"
	"strconv"

	"github.com/google/jsonschema-go/jsonschema"
)

var numberTokenRegex = regexp.MustCompile(`\b(\d{1,3})\b`)

var gradeSchema = Schema{
	Name:        "record_grade",
	Description: "Record the numeric grade assigned to an answer.",
	Spec: &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"grade": {
				Type:        "number",
				Description: "The grade from 0 to 100.",
			},
		},
		Required:             []string{"grade"},
		AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
	},
}

// ExtractGrade pulls a 0-100 grade out of prose. It scans for the first
// in-range integer token; if none is present it issues a single structured
// extraction call, and returns 0 if that also fails.
func (g *Generator) ExtractGrade(ctx context.Context, prose string) int {
	for _, tok := range numberTokenRegex.FindAllString(prose, -1) {
		n, err := strconv.Atoi(tok)
		if err == nil && n >= 0 && n <= 100 {
			return n
		}
	}

	result, err := g.Generate(ctx, "Extract the numeric grade (0-100) from this grading statement:\n\n"+prose, gradeSchema, 1)
	if err != nil {
		g.logger.Warnf("grade extraction fallback failed: %v", err)
		return 0
	}
	grade, ok := result["grade"].(float64)
	if !ok {
		return 0
	}
	n := int(grade)
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
