package utils

// Error is an immutable string error; packages declare their sentinel
// errors as typed constants so callers can match them with errors.Is
type Error string

func (e Error) Error() string {
	return string(e)
}

func PanicOnError(err error) {
	if err != nil {
		panic(err)
	}
}
