package codegen

import (
	"bytes"
	"fmt"

	"github.com/xplshn/zabi/pkg/config"
)

// Backend is the interface that all output backends must implement.
type Backend interface {
	// Generate renders lowered functions, in order, into the backend's output format.
	Generate(funcs []*Func, cfg *config.Config) (*bytes.Buffer, error)
}

var backends = map[string]func() Backend{
	"listing": NewListingBackend,
	"json":    NewJSONBackend,
}

// SelectBackend returns the backend registered under name.
func SelectBackend(name string) (Backend, error) {
	newBackend, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("unsupported output format '%s'. Supported: json, listing", name)
	}
	return newBackend(), nil
}
