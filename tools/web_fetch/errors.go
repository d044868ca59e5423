package web_fetch

// Error is a static fetch package error.
type Error struct {
	msg string
}

func (e *Error) Error() string { return "web_fetch: " + e.msg }
