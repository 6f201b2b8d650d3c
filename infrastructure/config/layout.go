package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	domainservices "canvas-backend/domain/services"

	"gopkg.in/yaml.v3"
)

// layoutDocument is the YAML shape of a layout file:
//
//	layout:
//	  nodeWidth: 300
//	  maxSiblings: 3
//	  center: {x: 650, y: 400}
//
// Keys that are absent keep their default value.
type layoutDocument struct {
	Layout domainservices.LayoutConfig `yaml:"layout"`
}

// LoadLayoutFile reads a layout override file. An empty path returns the defaults.
func LoadLayoutFile(path string) (domainservices.LayoutConfig, error) {
	if path == "" {
		return domainservices.DefaultLayoutConfig(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return domainservices.LayoutConfig{}, fmt.Errorf("failed to open layout file: %w", err)
	}
	defer f.Close()

	return DecodeLayout(f)
}

// DecodeLayout parses a layout document over the defaults and validates it
func DecodeLayout(r io.Reader) (domainservices.LayoutConfig, error) {
	doc := layoutDocument{Layout: domainservices.DefaultLayoutConfig()}

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return domainservices.LayoutConfig{}, fmt.Errorf("failed to parse layout YAML: %w", err)
	}

	if err := doc.Layout.Validate(); err != nil {
		return domainservices.LayoutConfig{}, fmt.Errorf("invalid layout: %w", err)
	}
	return doc.Layout, nil
}
