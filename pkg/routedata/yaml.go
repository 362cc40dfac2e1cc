package routedata

import (
	"bytes"
	_ "embed"
	"io"

	"gopkg.in/yaml.v3"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// LoadDefault returns the built-in Johannesburg catalog
func LoadDefault() (*Catalog, error) {
	return LoadYAML(bytes.NewReader(defaultCatalog))
}

func LoadYAML(reader io.Reader) (*Catalog, error) {
	var document catalogDocument

	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	if err := decoder.Decode(&document); err != nil {
		return nil, err
	}

	return New(document.Routes, document.Vehicles)
}
