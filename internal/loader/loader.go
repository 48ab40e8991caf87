package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pb33f/libopenapi"
	"github.com/pb33f/libopenapi/datamodel"
	v3 "github.com/pb33f/libopenapi/datamodel/high/v3"
	validator "github.com/pb33f/libopenapi-validator"
)

type Result struct {
	Document *libopenapi.DocumentModel[v3.Document]
	Version  string
	Warnings []string
	RawData  []byte

	doc libopenapi.Document
}

func LoadFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading spec file: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	config := &datamodel.DocumentConfiguration{
		BasePath:            filepath.Dir(absPath),
		AllowFileReferences: true,
	}

	return loadWithConfig(data, config)
}

// LoadBytes parses an in-memory document. File references are not followed.
func LoadBytes(data []byte) (*Result, error) {
	return loadWithConfig(data, nil)
}

func loadWithConfig(data []byte, config *datamodel.DocumentConfiguration) (*Result, error) {
	var doc libopenapi.Document
	var err error

	if config != nil {
		doc, err = libopenapi.NewDocumentWithConfiguration(data, config)
	} else {
		doc, err = libopenapi.NewDocument(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing OpenAPI document: %w", err)
	}

	version := doc.GetVersion()
	if !strings.HasPrefix(version, "3.") {
		return nil, fmt.Errorf("unsupported OpenAPI version: %s (only 3.x supported)", version)
	}

	model, err := doc.BuildV3Model()
	if err != nil {
		return nil, fmt.Errorf("building OpenAPI model: %w", err)
	}

	result := &Result{
		Document: model,
		Version:  version,
		RawData:  data,
		doc:      doc,
	}

	if strings.HasPrefix(version, "3.0") {
		result.Warnings = append(result.Warnings, "OpenAPI 3.0.x detected; some 3.1/3.2 features unavailable")
	}

	return result, nil
}

// Validate checks the document against the OpenAPI schema for its version.
// Findings are returned as warnings: generation proceeds on documents that
// libopenapi could build a model for.
func (r *Result) Validate() []string {
	if r.doc == nil {
		return nil
	}
	v, errs := validator.NewValidator(r.doc)
	if len(errs) > 0 {
		out := make([]string, 0, len(errs))
		for _, err := range errs {
			out = append(out, fmt.Sprintf("validator setup: %v", err))
		}
		return out
	}

	valid, validationErrs := v.ValidateDocument()
	if valid {
		return nil
	}
	out := make([]string, 0, len(validationErrs))
	for _, e := range validationErrs {
		msg := e.Message
		if e.Reason != "" {
			msg += ": " + e.Reason
		}
		out = append(out, msg)
	}
	return out
}
