package cli

// UsageError reports invalid flags or arguments. The root command maps it to
// its own exit code.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string { return e.Message }
