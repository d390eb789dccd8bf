package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// errRejected marks an invocation the contract refuses. Its message is
// returned to the invoker as the explanation.
var errRejected = errors.New("rejected")

type rejection struct {
	explanation string
}

func (r *rejection) Error() string { return r.explanation }
func (r *rejection) Unwrap() error { return errRejected }

func reject(format string, args ...any) error {
	return &rejection{explanation: fmt.Sprintf(format, args...)}
}

// kvState is the state of the key/value contract: a flat JSON object.
type kvState map[string]any

func decodeKVState(raw []byte) (kvState, error) {
	state := kvState{}
	if len(raw) == 0 {
		return state, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&state); err != nil {
		return nil, fmt.Errorf("malformed contract state: %w", err)
	}
	return state, nil
}

// Encoding is deterministic: map keys are sorted.
func (s kvState) encode() ([]byte, error) {
	return json.Marshal(map[string]any(s))
}

// kvResult is the outcome of one invocation.
type kvResult struct {
	value   any
	changed bool
}

type kvMethod func(state kvState, args *kvArgs) (kvResult, error)

var kvMethods = map[string]kvMethod{
	"get_value": getValue,
	"set_value": setValue,
	"inc_value": incValue,
	"fail":      fail,
}

// kvArgs resolves a named parameter from keyword parameters first, then by
// position.
type kvArgs struct {
	positional []any
	keyword    map[string]any
}

func (a *kvArgs) get(name string, position int) (any, bool) {
	if v, ok := a.keyword[name]; ok {
		return v, true
	}
	if position < len(a.positional) {
		return a.positional[position], true
	}
	return nil, false
}

func (a *kvArgs) key() (string, error) {
	v, ok := a.get("key", 0)
	if !ok {
		return "", reject("missing parameter: key")
	}
	key, ok := v.(string)
	if !ok || key == "" {
		return "", reject("parameter key must be a non-empty string")
	}
	return key, nil
}

func getValue(state kvState, args *kvArgs) (kvResult, error) {
	key, err := args.key()
	if err != nil {
		return kvResult{}, err
	}
	value, ok := state[key]
	if !ok {
		return kvResult{}, reject("no value for key %q", key)
	}
	return kvResult{value: value}, nil
}

func setValue(state kvState, args *kvArgs) (kvResult, error) {
	key, err := args.key()
	if err != nil {
		return kvResult{}, err
	}
	value, ok := args.get("value", 1)
	if !ok {
		return kvResult{}, reject("missing parameter: value")
	}
	state[key] = value
	return kvResult{value: value, changed: true}, nil
}

func incValue(state kvState, args *kvArgs) (kvResult, error) {
	key, err := args.key()
	if err != nil {
		return kvResult{}, err
	}

	amount := json.Number("1")
	if v, ok := args.get("amount", 1); ok {
		n, ok := asNumber(v)
		if !ok {
			return kvResult{}, reject("parameter amount must be a number")
		}
		amount = n
	}

	current := json.Number("0")
	if v, ok := state[key]; ok {
		n, ok := asNumber(v)
		if !ok {
			return kvResult{}, reject("value for key %q is not a number", key)
		}
		current = n
	}

	sum := addNumbers(current, amount)
	state[key] = sum
	return kvResult{value: sum, changed: true}, nil
}

func asNumber(v any) (json.Number, bool) {
	switch n := v.(type) {
	case json.Number:
		return n, true
	case float64:
		return json.Number(strconv.FormatFloat(n, 'g', -1, 64)), true
	}
	return "", false
}

// addNumbers is exact for integers that fit in int64 and falls back to
// float64 otherwise.
func addNumbers(a, b json.Number) json.Number {
	x, errX := a.Int64()
	y, errY := b.Int64()
	if errX == nil && errY == nil {
		sum := x + y
		if (y > 0 && sum > x) || (y <= 0 && sum <= x) {
			return json.Number(strconv.FormatInt(sum, 10))
		}
	}
	fx, _ := a.Float64()
	fy, _ := b.Float64()
	return json.Number(strconv.FormatFloat(fx+fy, 'g', -1, 64))
}

func fail(_ kvState, args *kvArgs) (kvResult, error) {
	if v, ok := args.get("message", 0); ok {
		if msg, ok := v.(string); ok && msg != "" {
			return kvResult{}, reject("%s", msg)
		}
	}
	return kvResult{}, reject("invocation failed")
}
