// Package actionfile loads batches of offline actions from YAML or JSON
// documents for "syncqueue queue import".
package actionfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"syncqueue/internal/dispatch"
)

// Entry is one action as written in an import file.
type Entry struct {
	Method string `yaml:"method"`
	Path   string `yaml:"path"`
	Body   any    `yaml:"body"`
}

type document struct {
	Actions []Entry `yaml:"actions"`
}

// Load reads path and returns the encoded action payloads in file order.
func Load(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read action file: %w", err)
	}
	payloads, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return payloads, nil
}

// Parse accepts either a top-level list of entries or a document with an
// "actions" list. JSON input parses as YAML.
func Parse(data []byte) ([]json.RawMessage, error) {
	entries, err := decodeEntries(data)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.New("no actions found")
	}

	payloads := make([]json.RawMessage, 0, len(entries))
	for i, entry := range entries {
		payload, err := entry.Payload()
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i+1, err)
		}
		payloads = append(payloads, payload)
	}
	return payloads, nil
}

func decodeEntries(data []byte) ([]Entry, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	switch root.Content[0].Kind {
	case yaml.SequenceNode:
		var entries []Entry
		if err := decoder.Decode(&entries); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		return entries, nil
	case yaml.MappingNode:
		var doc document
		if err := decoder.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		return doc.Actions, nil
	default:
		return nil, errors.New("expected a list of actions or an actions: key")
	}
}

// Payload validates the entry and encodes it as a dispatch request.
func (e Entry) Payload() (json.RawMessage, error) {
	req := dispatch.Request{Method: e.Method, Path: e.Path}
	if e.Body != nil {
		body, err := json.Marshal(e.Body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		req.Body = body
	}
	return req.Encode()
}
