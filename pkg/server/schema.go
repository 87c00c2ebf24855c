package server

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// maxControlBody caps window control request bodies.
const maxControlBody = 4 << 10

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	windowSchema = mustSchema("schemas/window.json")
	boundSchema  = mustSchema("schemas/bound.json")
)

func mustSchema(path string) *gojsonschema.Schema {
	data, err := schemaFS.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("server: read embedded schema %s: %v", path, err))
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		panic(fmt.Sprintf("server: compile embedded schema %s: %v", path, err))
	}

	return schema
}

// errInvalidBody marks a request body that failed decoding or validation.
var errInvalidBody = errors.New("invalid request body")

// validationError lists why a body was rejected.
type validationError struct {
	details []string
}

func (e *validationError) Error() string {
	return errInvalidBody.Error() + ": " + strings.Join(e.details, "; ")
}

func (e *validationError) Unwrap() error { return errInvalidBody }

// decodeBody validates the JSON body of hr against schema and decodes it into dst.
func decodeBody(rw http.ResponseWriter, hr *http.Request, schema *gojsonschema.Schema, dst any) error {
	body, readErr := io.ReadAll(http.MaxBytesReader(rw, hr.Body, maxControlBody))
	if readErr != nil {
		return &validationError{details: []string{readErr.Error()}}
	}

	result, validateErr := schema.Validate(gojsonschema.NewBytesLoader(body))
	if validateErr != nil {
		return &validationError{details: []string{validateErr.Error()}}
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			details = append(details, resultErr.String())
		}

		return &validationError{details: details}
	}

	unmarshalErr := json.Unmarshal(body, dst)
	if unmarshalErr != nil {
		return &validationError{details: []string{unmarshalErr.Error()}}
	}

	return nil
}
