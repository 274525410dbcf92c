package response

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Response is the JSON envelope used for error payloads and simple
// success messages.
type Response struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
	Details []any  `json:"details,omitempty"`
	Data    any    `json:"data,omitempty"`
}

var EmptyRequestBodyResponse = Response{
	Status:  StatusError,
	Error:   "Empty Request Body",
	Message: "Request body is empty. Please provide necessary data.",
}

var BadRequestResponse = Response{
	Status:  StatusError,
	Error:   "Bad Request",
	Message: "The request couldn't be processed. Please check your input.",
}

var ResourceNotFoundResponse = Response{
	Status:  StatusError,
	Error:   "Resource Not Found",
	Message: "The requested resource was not found.",
}

var ShortCodeConflictResponse = Response{
	Status:  StatusError,
	Error:   "Conflict",
	Message: "The custom short code is already taken.",
}

var FeatureDisabledResponse = Response{
	Status:  StatusError,
	Error:   "Feature Disabled",
	Message: "This feature is not enabled on the server.",
}

var RateLimitExceededResponse = Response{
	Status:  StatusError,
	Error:   "Too Many Requests",
	Message: "Rate limit exceeded. Please try again later.",
}

var ServerErrorResponse = Response{
	Status:  StatusError,
	Error:   "Server Error",
	Message: "An internal server error occurred. Please try again later.",
}

// SuccessResponse builds a success envelope with an optional data payload.
func SuccessResponse(msg string, data ...any) Response {
	resp := Response{
		Status:  StatusSuccess,
		Message: msg,
	}

	if len(data) > 0 {
		resp.Data = data[0]
	}

	return resp
}

// ValidationErrorResponse converts validator errors into a response with
// per-field details.
func ValidationErrorResponse(err error) Response {
	resp := Response{
		Status:  StatusError,
		Error:   "Validation Error",
		Message: "The request contains invalid data.",
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		for _, vErr := range validationErrs {
			resp.Details = append(resp.Details, map[string]string{
				"field":   vErr.Field(),
				"message": fmt.Sprintf("failed on the '%s' rule", vErr.Tag()),
			})
		}
	}

	return resp
}
