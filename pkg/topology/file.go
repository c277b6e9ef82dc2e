package topology

import (
	"bytes"
	"errors"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/javanstorm/vmtopo/internal/errdefs"
)

// Parse decodes a YAML declaration and normalizes it. Unknown fields are
// rejected so a misspelled key does not silently fall back to a default.
func Parse(data []byte) (*Deployment, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var d Deployment
	if err := dec.Decode(&d); err != nil {
		return nil, errdefs.Invalid("parse declaration", "", err)
	}
	d.Normalize()
	return &d, nil
}

// ReadFile parses the declaration at path.
func ReadFile(path string) (*Deployment, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errdefs.NotFound("read declaration", path, nil)
	}
	if err != nil {
		return nil, errdefs.IO("read declaration", path, err)
	}

	d, err := Parse(data)
	if err != nil {
		return nil, errdefs.Invalid("read declaration", path, errors.Unwrap(err))
	}
	return d, nil
}
