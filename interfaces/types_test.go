package interfaces

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContractClone(t *testing.T) {
	c := &Contract{
		ID:                  "c1",
		ProvisionedEnclaves: []EnclaveID{"0xaa"},
		ExtraData:           map[string]string{PreferredEnclaveKey: "0xaa"},
	}
	c.SetState([]byte(`{"value":1}`))

	clone := c.Clone()
	clone.SetState([]byte(`{"value":2}`))
	clone.ExtraData["x"] = "y"
	clone.ProvisionedEnclaves[0] = "0xbb"

	assert.Equal(t, []byte(`{"value":1}`), c.State)
	assert.NotEqual(t, c.StateHash, clone.StateHash)
	assert.NotContains(t, c.ExtraData, "x")
	assert.Equal(t, EnclaveID("0xaa"), c.ProvisionedEnclaves[0])
}

func TestContractEnclaveHelpers(t *testing.T) {
	c := &Contract{ProvisionedEnclaves: []EnclaveID{"0xabcdef"}}

	assert.True(t, c.IsProvisioned("0xabcdef"))
	assert.True(t, c.IsProvisioned("ABCDEF"))
	assert.False(t, c.IsProvisioned("0x123456"))

	_, ok := c.PreferredEnclave()
	assert.False(t, ok)

	c.ExtraData = map[string]string{PreferredEnclaveKey: " 0xABCDEF "}
	id, ok := c.PreferredEnclave()
	require.True(t, ok)
	assert.Equal(t, EnclaveID("0xabcdef"), id)
}

func TestInvocationHash(t *testing.T) {
	a := &InvocationRequest{Method: "set_value", KeywordParameters: map[string]any{"b": 1, "a": 2}}
	b := &InvocationRequest{Method: "set_value", KeywordParameters: map[string]any{"a": 2, "b": 1}}

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)

	data, err := (&InvocationRequest{Method: "get_value"}).Serialize()
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"get_value","positional_parameters":[],"keyword_parameters":{}}`, string(data))
}

func TestInvocationHashLargeIntegers(t *testing.T) {
	sent := &InvocationRequest{
		Method:               "set_value",
		PositionalParameters: []any{"counter", int64(1<<53 + 1)},
		KeywordParameters:    map[string]any{"limit": uint64(1<<63 + 1)},
	}
	data, err := sent.Serialize()
	require.NoError(t, err)
	assert.Contains(t, string(data), "9007199254740993")
	assert.Contains(t, string(data), "9223372036854775809")

	var received InvocationRequest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&received))

	want, err := sent.Hash()
	require.NoError(t, err)
	got, err := received.Hash()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// float64 decoding rounds the integer and must not collide
	var lossy InvocationRequest
	require.NoError(t, json.Unmarshal(data, &lossy))
	lossyHash, err := lossy.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, want, lossyHash)
}

func TestUpdateResponseDigest(t *testing.T) {
	base := UpdateResponse{
		ContractID:         "c1",
		Status:             true,
		InvocationResponse: "1",
		StateChanged:       true,
		OldStateHash:       []byte{1},
		NewStateHash:       []byte{2},
		InvocationHash:     []byte{3},
	}
	digest := base.Digest()
	require.Len(t, digest, 32)

	mutations := map[string]func(r *UpdateResponse){
		"status":   func(r *UpdateResponse) { r.Status = false },
		"changed":  func(r *UpdateResponse) { r.StateChanged = false },
		"response": func(r *UpdateResponse) { r.InvocationResponse = "2" },
		"new hash": func(r *UpdateResponse) { r.NewStateHash = []byte{4} },
		"contract": func(r *UpdateResponse) { r.ContractID = "c2" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			r := base
			mutate(&r)
			assert.NotEqual(t, digest, r.Digest())
		})
	}
}

func TestRejectedInvocationError(t *testing.T) {
	err := fmt.Errorf("send failed: %w", &RejectedInvocationError{Explanation: "insufficient funds"})

	var rejected *RejectedInvocationError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, "insufficient funds", rejected.Explanation)
}
