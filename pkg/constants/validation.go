package constants

import "github.com/go-playground/validator/v10"

// Validate is the shared struct validator for input DTOs.
var Validate = validator.New(validator.WithRequiredStructEnabled())
