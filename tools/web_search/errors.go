package web_search

// Error is a static search package error.
type Error struct {
	msg string
}

func (e *Error) Error() string { return "web_search: " + e.msg }
