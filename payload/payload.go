package payload

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/guseggert/jsinject/internal/files"
)

// StdinMarker selects standard input as the custom payload source.
const StdinMarker = "-"

// SourceError is returned when a script or payload cannot be read.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("could not read payload from %s: %s", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Script returns the source to evaluate. Literal code wins over the script path.
// A relative script path that is not in the working directory is looked up in its parents.
func Script(code, scriptPath string) (string, error) {
	if code != "" {
		return code, nil
	}
	path, err := resolve(scriptPath)
	if err != nil {
		return "", &SourceError{Source: scriptPath, Err: err}
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", &SourceError{Source: path, Err: err}
	}
	return string(b), nil
}

func resolve(scriptPath string) (string, error) {
	if filepath.IsAbs(scriptPath) {
		return scriptPath, nil
	}
	if _, err := os.Stat(scriptPath); err == nil || !errors.Is(err, os.ErrNotExist) {
		return scriptPath, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	return files.FindUp(scriptPath, wd)
}

// Custom returns a raw protocol payload, read from stdin when value is "-". The payload must be valid JSON.
func Custom(value string, stdin io.Reader) ([]byte, error) {
	source := "--custom-payload"
	b := []byte(value)
	if value == StdinMarker {
		source = "stdin"
		var err error
		b, err = io.ReadAll(stdin)
		if err != nil {
			return nil, &SourceError{Source: source, Err: err}
		}
	}
	if !json.Valid(b) {
		return nil, &SourceError{Source: source, Err: errors.New("payload is not valid JSON")}
	}
	return b, nil
}
