package contract

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ruteri/pdo-contract-client/cryptoutils"
	"github.com/ruteri/pdo-contract-client/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	store := NewFileStore(t.TempDir())

	_, err := store.Load("counter")
	require.ErrorIs(t, err, ErrContractNotFound)

	contract := &interfaces.Contract{
		ID:                  "contract-1",
		Name:                "counter",
		ProvisionedEnclaves: []interfaces.EnclaveID{"0xaa", "0xbb"},
		ExtraData:           map[string]string{interfaces.PreferredEnclaveKey: "0xbb"},
	}
	contract.SetState([]byte(`{"value":0}`))
	require.NoError(t, store.Save("counter", contract))

	assert.FileExists(t, store.Path("counter"))
	assert.Equal(t, store.Path("counter"), store.Path("counter.pdo"))

	loaded, err := store.Load("counter")
	require.NoError(t, err)
	assert.Equal(t, contract, loaded)

	// explicit paths bypass the cache directory
	explicit := filepath.Join(t.TempDir(), "elsewhere.pdo")
	require.NoError(t, store.Save(explicit, contract))
	_, err = store.Load(explicit)
	require.NoError(t, err)
}

func TestFileStoreRejectsInvalidRecords(t *testing.T) {
	store := NewFileStore(t.TempDir())
	path := store.Path("broken")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))

	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))
	_, err := store.Load("broken")
	require.Error(t, err)

	data, _ := json.Marshal(map[string]string{"name": "no id"})
	require.NoError(t, os.WriteFile(path, data, 0644))
	_, err = store.Load("broken")
	require.Error(t, err)
}

func TestFileKeyStore(t *testing.T) {
	dir := t.TempDir()
	keys, err := cryptoutils.GenerateClientKeys()
	require.NoError(t, err)
	require.NoError(t, cryptoutils.WriteClientKeys(filepath.Join(dir, "user1_private.pem"), keys, "secret"))

	store := &FileKeyStore{Passphrase: "secret"}
	loaded, err := store.LoadKeys("user1_private.pem", []string{t.TempDir(), dir})
	require.NoError(t, err)
	assert.Equal(t, keys.Identity(), loaded.Identity())

	_, err = store.LoadKeys("user2_private.pem", []string{dir})
	require.Error(t, err)

	_, err = (&FileKeyStore{}).LoadKeys("user1_private.pem", []string{dir})
	require.ErrorIs(t, err, cryptoutils.ErrPassphraseRequired)
}

func TestCreateUpdateRequest(t *testing.T) {
	keys, err := cryptoutils.GenerateClientKeys()
	require.NoError(t, err)

	contract := &interfaces.Contract{ID: "contract-1"}
	contract.SetState([]byte(`{"value":0}`))
	invocation := &interfaces.InvocationRequest{Method: "inc_value", PositionalParameters: []any{1}}

	req, err := CreateUpdateRequest(contract, invocation, keys, "0xaa")
	require.NoError(t, err)
	assert.Equal(t, keys.Identity(), req.InvokerID)
	assert.Equal(t, interfaces.EnclaveID("0xaa"), req.EnclaveID)
	require.NoError(t, VerifyUpdateRequest(req))

	// survives the wire
	data, err := json.Marshal(req)
	require.NoError(t, err)
	var decoded interfaces.UpdateRequest
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NoError(t, VerifyUpdateRequest(&decoded))

	tampered := *req
	tampered.Invocation.Method = "set_value"
	require.Error(t, VerifyUpdateRequest(&tampered))

	tampered = *req
	tampered.EnclaveID = "0xbb"
	require.ErrorIs(t, VerifyUpdateRequest(&tampered), cryptoutils.ErrInvalidSignature)

	_, err = CreateUpdateRequest(contract, &interfaces.InvocationRequest{}, keys, "0xaa")
	require.Error(t, err)
}
