package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ruteri/pdo-contract-client/interfaces"
)

// parseValue decodes a command line argument as JSON, falling back to the
// literal string. Numbers keep their literal text.
func parseValue(arg string) any {
	var v any
	if err := decodeJSON(arg, &v); err != nil {
		return arg
	}
	return v
}

func decodeJSON(data string, v any) error {
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}

// buildInvocation assembles an invocation from the method, trailing
// arguments, a JSON list of positional parameters and key=value pairs.
// JSON positional parameters come before trailing arguments.
func buildInvocation(method string, args []string, positionalJSON string, kwargs []string) (*interfaces.InvocationRequest, error) {
	if method == "" {
		return nil, fmt.Errorf("missing method")
	}

	inv := &interfaces.InvocationRequest{
		Method:               method,
		PositionalParameters: []any{},
		KeywordParameters:    map[string]any{},
	}

	if positionalJSON != "" {
		var positional []any
		if err := decodeJSON(positionalJSON, &positional); err != nil {
			return nil, fmt.Errorf("positional parameters must be a JSON list: %w", err)
		}
		inv.PositionalParameters = append(inv.PositionalParameters, positional...)
	}
	for _, arg := range args {
		inv.PositionalParameters = append(inv.PositionalParameters, parseValue(arg))
	}

	for _, kv := range kwargs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("keyword parameter %q is not key=value", kv)
		}
		if _, dup := inv.KeywordParameters[key]; dup {
			return nil, fmt.Errorf("keyword parameter %q given twice", key)
		}
		inv.KeywordParameters[key] = parseValue(value)
	}

	return inv, nil
}
