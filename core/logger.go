package core

// Logger is implemented by the logging services.
// args may hold errors, `map[string]interface{}` extras and the request's user identity.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Identity is the authenticated caller of an operation.
type Identity struct {
	Username string
	Roles    []string
}
