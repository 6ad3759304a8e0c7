package taxonomy

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: Classify and UserMessage are total and never disagree about
// whether a code is known.
func TestClassifyIsTotal(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("every code maps to exactly one category and a message", prop.ForAll(
		func(code string) bool {
			cat := Classify(code)
			msg := UserMessage(code)
			if msg == "" {
				return false
			}
			if _, known := categories[Normalize(code)]; !known {
				return cat == CategoryUnknown && msg == GenericMessage
			}
			return cat != CategoryUnknown
		},
		gen.OneGenOf(
			gen.AnyString(),
			gen.AlphaString(),
			gen.OneConstOf(CodeUnauthorized, CodeCaptureFailed, CodeDatabaseError, CodeHTTPError),
		),
	))

	properties.TestingRun(t)
}
