package internal

import (
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

func WriteYAML(filename string, value any) (err error) {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return EncodeYAML(file, value)
}

// EncodeYAML writes each value as its own document using two space indentation.
func EncodeYAML(w io.Writer, values ...any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	for _, value := range values {
		if err := encoder.Encode(value); err != nil {
			return err
		}
	}
	return encoder.Close()
}
