package document

import (
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
)

var (
	docKindTag  = "dockind"
	docKindText = "invalid document kind"

	docVisibilityTag  = "docvisibility"
	docVisibilityText = "invalid visibility"
)

func init() {
	// register validators
	_ = core.Validate.RegisterValidation(docKindTag, docKindValidation)
	core.RegisterCustomTranslation(docKindTag, docKindText)

	_ = core.Validate.RegisterValidation(docVisibilityTag, docVisibilityValidation)
	core.RegisterCustomTranslation(docVisibilityTag, docVisibilityText)
}

// Custom Validators

// docKindValidation checks that the provided kind is a known content kind.
func docKindValidation(fl validator.FieldLevel) bool {
	return contains(Kinds, fl.Field().String())
}

// docVisibilityValidation checks that the provided visibility is a known level.
func docVisibilityValidation(fl validator.FieldLevel) bool {
	return contains(Visibilities, fl.Field().String())
}

func contains(vals []string, v string) bool {
	for _, val := range vals {
		if val == v {
			return true
		}
	}
	return false
}
