package serrors

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationErrors maps a field name to a human readable problem.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f + ": " + v[f]
	}
	return strings.Join(parts, "; ")
}

// ProcessValidatorErrors converts validator output into ValidationErrors.
// Errors that are not validator errors are returned unchanged under "_".
func ProcessValidatorErrors(err error) ValidationErrors {
	if err == nil {
		return nil
	}
	out := ValidationErrors{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out["_"] = err.Error()
		return out
	}
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			out[fe.Field()] = "is required"
		case "gt", "gte", "min":
			out[fe.Field()] = fmt.Sprintf("must be at least %s", fe.Param())
		case "max", "lte":
			out[fe.Field()] = fmt.Sprintf("must be at most %s", fe.Param())
		case "oneof":
			out[fe.Field()] = fmt.Sprintf("must be one of [%s]", fe.Param())
		default:
			out[fe.Field()] = fmt.Sprintf("failed %q validation", fe.Tag())
		}
	}
	return out
}
