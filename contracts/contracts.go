// Package contracts embeds the OpenAPI description of the public API.
package contracts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed edupay.yaml
var document []byte

// Name is the public name the document is served under.
const Name = "edupay"

// Raw returns the YAML document as embedded.
func Raw() []byte {
	out := make([]byte, len(document))
	copy(out, document)
	return out
}

// Load parses and validates the contract. Each call returns a fresh document, so callers may
// mutate it (the request validator injects defaults).
func Load(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(document)
	if err != nil {
		return nil, fmt.Errorf("parse contract: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate contract: %w", err)
	}
	return doc, nil
}
