package response

// Error is the JSON body returned on every failed request. The error field
// names the failure class, message carries the human-readable detail.
type Error struct {
	Err     string `json:"error"`
	Message string `json:"message,omitempty"`
}

func BadRequest(message string) Error {
	return Error{Err: "Bad Request", Message: message}
}

func Unauthorized(message string) Error {
	return Error{Err: "Unauthorized", Message: message}
}

func NotFound(message string) Error {
	return Error{Err: "Not Found", Message: message}
}

func Conflict(message string) Error {
	return Error{Err: "Conflict", Message: message}
}

func Internal(message string) Error {
	return Error{Err: "Internal Server Error", Message: message}
}
