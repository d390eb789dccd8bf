package httpserver

import (
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/pdo-contract-client/interfaces"
	"github.com/stretchr/testify/require"
)

func ethAddress(t *testing.T, id interfaces.EnclaveID) ethcommon.Address {
	require.True(t, ethcommon.IsHexAddress(string(id)))
	return ethcommon.HexToAddress(string(id))
}
