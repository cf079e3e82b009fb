package validation

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-order-lifecycle/internal/observability"
)

// BindAndValidate binds JSON body into `out` and runs validation.
// If validation fails, it writes a 400 response and returns an error for the handler to short-circuit.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "invalid_input",
			"message":    "request body is not valid JSON for this endpoint",
			"request_id": observability.RequestID(c),
		})
		return err
	}

	if err := v.Struct(out); err != nil {
		// return structured validation errors
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "invalid_input",
			"message":    "request validation failed",
			"fields":     validationErrorsToMap(err),
			"request_id": observability.RequestID(c),
		})
		return err
	}
	return nil
}

func validationErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[fe.Namespace()] = describe(fe)
		}
	} else {
		out["error"] = err.Error()
	}
	return out
}

func describe(fe validatorv10.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gte":
		return "must not be negative"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "money":
		return "must be an amount with at most two decimal places"
	case "unique_line":
		return "repeats an earlier line for the same item"
	}
	return fe.Error()
}
