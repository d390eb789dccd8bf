package interfaces

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/ruteri/pdo-contract-client/cryptoutils"
)

// PreferredEnclaveKey is the contract extra-data key naming the enclave an
// invoker should use when no explicit choice is made.
const PreferredEnclaveKey = "preferred-enclave"

// EnclaveID identifies an enclave by the lowercase hex address of its
// verifying key.
type EnclaveID string

// NewEnclaveID normalizes an enclave identifier.
func NewEnclaveID(id string) EnclaveID {
	id = strings.ToLower(strings.TrimSpace(id))
	if id != "" && !strings.HasPrefix(id, "0x") {
		id = "0x" + id
	}
	return EnclaveID(id)
}

func (id EnclaveID) String() string { return string(id) }

// Contract is the client-side record of a contract and its last known state.
type Contract struct {
	ID                  string            `json:"contract_id"`
	CreatorID           string            `json:"creator_id"`
	Name                string            `json:"name"`
	ContractCodeHash    string            `json:"contract_code_hash"`
	ProvisionedEnclaves []EnclaveID       `json:"provisioned_enclaves"`
	ExtraData           map[string]string `json:"extra_data,omitempty"`
	State               []byte            `json:"state,omitempty"`
	StateHash           []byte            `json:"state_hash,omitempty"`
}

// Clone returns a deep copy, used as the working copy during commit.
func (c *Contract) Clone() *Contract {
	return &Contract{
		ID:                  c.ID,
		CreatorID:           c.CreatorID,
		Name:                c.Name,
		ContractCodeHash:    c.ContractCodeHash,
		ProvisionedEnclaves: slices.Clone(c.ProvisionedEnclaves),
		ExtraData:           maps.Clone(c.ExtraData),
		State:               bytes.Clone(c.State),
		StateHash:           bytes.Clone(c.StateHash),
	}
}

// SetState replaces the raw state and recomputes its hash.
func (c *Contract) SetState(raw []byte) {
	c.State = bytes.Clone(raw)
	c.StateHash = cryptoutils.ComputeStateHash(raw)
}

// IsProvisioned reports whether the enclave may execute this contract.
func (c *Contract) IsProvisioned(id EnclaveID) bool {
	return slices.Contains(c.ProvisionedEnclaves, NewEnclaveID(string(id)))
}

// PreferredEnclave returns the preferred enclave hint, if any.
func (c *Contract) PreferredEnclave() (EnclaveID, bool) {
	hint, ok := c.ExtraData[PreferredEnclaveKey]
	if !ok || strings.TrimSpace(hint) == "" {
		return "", false
	}
	return NewEnclaveID(hint), true
}

// EnclaveEndpoint is a resolved enclave, as recorded in the enclave service database.
type EnclaveEndpoint struct {
	EnclaveID EnclaveID `json:"enclave_id"`
	URL       string    `json:"url"`
	Name      string    `json:"name,omitempty"`
}

// EnclaveRecord is an entry of the enclave service database.
type EnclaveRecord = EnclaveEndpoint

// InvocationRequest names a contract method and its arguments.
type InvocationRequest struct {
	Method               string         `json:"method"`
	PositionalParameters []any          `json:"positional_parameters"`
	KeywordParameters    map[string]any `json:"keyword_parameters"`
}

// Serialize renders the invocation as JSON with sorted keyword keys.
// Parameters are normalized through a decode that keeps numbers as their
// literal text, so the invoker and an enclave that decoded the request with
// json.Decoder.UseNumber produce the same bytes for any integer.
func (r *InvocationRequest) Serialize() ([]byte, error) {
	positional := r.PositionalParameters
	if positional == nil {
		positional = []any{}
	}
	keyword := r.KeywordParameters
	if keyword == nil {
		keyword = map[string]any{}
	}
	data, err := json.Marshal(InvocationRequest{Method: r.Method, PositionalParameters: positional, KeywordParameters: keyword})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize invocation: %w", err)
	}

	var canonical InvocationRequest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&canonical); err != nil {
		return nil, fmt.Errorf("failed to serialize invocation: %w", err)
	}
	data, err = json.Marshal(canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize invocation: %w", err)
	}
	return data, nil
}

// Hash is the keccak256 of the serialized invocation.
func (r *InvocationRequest) Hash() ([]byte, error) {
	data, err := r.Serialize()
	if err != nil {
		return nil, err
	}
	return cryptoutils.ComputeStateHash(data), nil
}

// UpdateRequest is a signed request to evaluate an invocation against the
// contract's current state.
type UpdateRequest struct {
	ContractID     string            `json:"contract_id"`
	EnclaveID      EnclaveID         `json:"enclave_id"`
	InvokerID      string            `json:"invoker_id"`
	StateHash      []byte            `json:"state_hash"`
	State          []byte            `json:"state"`
	Invocation     InvocationRequest `json:"invocation"`
	InvocationHash []byte            `json:"invocation_hash"`
	Signature      []byte            `json:"signature"`
}

// Hash is the digest the invoker signs.
func (r *UpdateRequest) Hash() []byte {
	var buf bytes.Buffer
	writeField(&buf, []byte(r.ContractID))
	writeField(&buf, []byte(r.EnclaveID))
	writeField(&buf, []byte(r.InvokerID))
	writeField(&buf, r.StateHash)
	writeField(&buf, r.InvocationHash)
	return cryptoutils.ComputeStateHash(buf.Bytes())
}

// UpdateResponse is the enclave's signed result of evaluating an update request.
type UpdateResponse struct {
	ContractID         string    `json:"contract_id"`
	EnclaveID          EnclaveID `json:"enclave_id"`
	Status             bool      `json:"status"`
	InvocationResponse string    `json:"invocation_response"`
	StateChanged       bool      `json:"state_changed"`
	OldStateHash       []byte    `json:"old_state_hash"`
	NewStateHash       []byte    `json:"new_state_hash"`
	RawState           []byte    `json:"raw_state,omitempty"`
	InvocationHash     []byte    `json:"invocation_hash"`
	Signature          []byte    `json:"signature"`
}

// Digest is what the enclave signs. It binds the state transition, the
// invocation and its outcome.
func (r *UpdateResponse) Digest() []byte {
	var buf bytes.Buffer
	writeField(&buf, []byte(r.ContractID))
	writeField(&buf, r.OldStateHash)
	writeField(&buf, r.NewStateHash)
	writeField(&buf, r.InvocationHash)
	writeField(&buf, cryptoutils.ComputeStateHash([]byte(r.InvocationResponse)))
	buf.WriteByte(boolByte(r.Status))
	buf.WriteByte(boolByte(r.StateChanged))
	return cryptoutils.ComputeStateHash(buf.Bytes())
}

// ChangeSet is a state transition ready for replication and ledger commit.
type ChangeSet struct {
	ContractID       string    `json:"contract_id"`
	EnclaveID        EnclaveID `json:"enclave_id"`
	OldStateHash     []byte    `json:"old_state_hash"`
	NewStateHash     []byte    `json:"new_state_hash"`
	RawState         []byte    `json:"raw_state"`
	InvocationHash   []byte    `json:"invocation_hash"`
	EnclaveSignature []byte    `json:"enclave_signature"`
}

// NewChangeSet extracts the commit payload from an evaluated response.
func NewChangeSet(resp *UpdateResponse) *ChangeSet {
	return &ChangeSet{
		ContractID:       resp.ContractID,
		EnclaveID:        resp.EnclaveID,
		OldStateHash:     bytes.Clone(resp.OldStateHash),
		NewStateHash:     bytes.Clone(resp.NewStateHash),
		RawState:         bytes.Clone(resp.RawState),
		InvocationHash:   bytes.Clone(resp.InvocationHash),
		EnclaveSignature: bytes.Clone(resp.Signature),
	}
}

// LedgerConfig describes the ledger and replication targets a commit goes to.
type LedgerConfig struct {
	Type            string   `toml:"Type" json:"type"`
	URL             string   `toml:"URL" json:"url"`
	ContractAddress string   `toml:"ContractAddress" json:"contract_address"`
	KeyFile         string   `toml:"KeyFile" json:"key_file"`
	ChainID         int64    `toml:"ChainID" json:"chain_id"`
	PollInterval    string   `toml:"PollInterval" json:"poll_interval"`
	PollAttempts    int      `toml:"PollAttempts" json:"poll_attempts"`
	StorageURIs     []string `toml:"StorageURIs" json:"storage_uris"`
}

func writeField(buf *bytes.Buffer, field []byte) {
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(field)))
	buf.Write(size[:])
	buf.Write(field)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
