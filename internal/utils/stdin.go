package utils

import (
	"errors"
	"io"
	"os"
	"strings"
)

// ErrInteractiveInput is returned when input is a terminal
var ErrInteractiveInput = errors.New("standard input is a terminal")

// ReadInput reads all content from in, trimmed. A terminal is refused rather than
// blocking for input; an empty regular file reads as "".
func ReadInput(in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil {
			return "", err
		}
		if (stat.Mode() & os.ModeCharDevice) != 0 {
			return "", ErrInteractiveInput
		}
		if stat.Mode().IsRegular() && stat.Size() == 0 {
			return "", nil
		}
	}

	bytes, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(bytes)), nil
}
