package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const maxBodyBytes = 1 << 20

const (
	scheduleDemoSchemaURL = "mem://schemas/schedule_demo_input.json"
	quoteRequestSchemaURL = "mem://schemas/quote_request.json"
)

type schemas struct {
	scheduleDemo *jsonschema.Schema
	quoteRequest *jsonschema.Schema
}

func compileSchemas() (*schemas, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true

	files := map[string]string{
		scheduleDemoSchemaURL: "assets/schemas/schedule_demo_input.json",
		quoteRequestSchemaURL: "assets/schemas/quote_request.json",
	}
	for url, path := range files {
		if err := c.AddResource(url, bytes.NewReader(mustAsset(path))); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", url, err)
		}
	}

	var s schemas
	var err error
	if s.scheduleDemo, err = c.Compile(scheduleDemoSchemaURL); err != nil {
		return nil, fmt.Errorf("compile ScheduleDemoInput: %w", err)
	}
	if s.quoteRequest, err = c.Compile(quoteRequestSchemaURL); err != nil {
		return nil, fmt.Errorf("compile QuoteRequest: %w", err)
	}
	return &s, nil
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// leafErrors achata a árvore de causas do validador, mantendo só as folhas.
func leafErrors(ve *jsonschema.ValidationError) []fieldError {
	var out []fieldError
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			field := e.InstanceLocation
			if field == "" {
				field = "/"
			}
			out = append(out, fieldError{Field: field, Message: e.Message})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// decodeBody lê o corpo (até 1MB), valida contra o schema e decodifica em dst.
// Devolve o documento genérico, usado como payload do fingerprint. Em caso de
// erro a resposta já foi escrita e ok=false.
func decodeBody(w http.ResponseWriter, r *http.Request, schema *jsonschema.Schema, schemaName string, dst any) (doc any, ok bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "Request body too large", map[string]any{
				"limitBytes": tooLarge.Limit,
			})
			return nil, false
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Could not read request body", nil)
		return nil, false
	}

	doc, err = decodeJSON(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid JSON in request body", map[string]any{
			"error": err.Error(),
			"path":  r.URL.Path,
		})
		return nil, false
	}

	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			writeError(w, http.StatusInternalServerError, CodeInternal, "Internal server error", nil)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, CodeValidation, "Request validation failed", map[string]any{
			"errors": leafErrors(ve),
			"schema": schemaName,
		})
		return nil, false
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid JSON in request body", map[string]any{
			"error": err.Error(),
		})
		return nil, false
	}
	return doc, true
}

// decodeJSON decodifica em valores genéricos preservando números como
// json.Number, o formato que o validador espera.
func decodeJSON(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("unexpected data after top-level value")
	}
	return doc, nil
}
