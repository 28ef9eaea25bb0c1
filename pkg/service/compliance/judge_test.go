package compliance

import (
	"testing"

	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"
)

func TestBuildVerdictSchema(t *testing.T) {
	schema := buildVerdictSchema()
	gt.Value(t, schema.Type).Equal(gollem.TypeObject)

	t.Run("every verdict field is required", func(t *testing.T) {
		for _, name := range []string{"passed", "confidence", "issues", "reasoning"} {
			prop, ok := schema.Properties[name]
			gt.Bool(t, ok).True().Required()
			gt.Bool(t, prop.Required).True()
		}
	})

	t.Run("every issue field is required", func(t *testing.T) {
		issues, ok := schema.Properties["issues"]
		gt.Bool(t, ok).True().Required()
		gt.Value(t, issues.Type).Equal(gollem.TypeArray)
		gt.Value(t, issues.Items).NotNil().Required()

		for _, name := range []string{"type", "description", "severity"} {
			prop, ok := issues.Items.Properties[name]
			gt.Bool(t, ok).True().Required()
			gt.Bool(t, prop.Required).True()
		}
	})
}
