package model

// Result is the response envelope for every API call.
type Result struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *ErrorEnvelope `json:"error,omitempty"`
	Message string         `json:"message,omitempty"`
}

// OK wraps data in a successful Result.
func OK(data any, msg string) Result {
	return Result{Success: true, Data: data, Message: msg}
}

// Fail wraps an error envelope in a failed Result.
func Fail(env *ErrorEnvelope) Result {
	return Result{Success: false, Error: env, Message: env.Message}
}
