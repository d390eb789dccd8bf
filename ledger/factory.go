package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ruteri/pdo-contract-client/cryptoutils"
	"github.com/ruteri/pdo-contract-client/interfaces"
)

const (
	MemoryLedgerType   = "memory"
	EthereumLedgerType = "ethereum"
)

// New creates the ledger client described by cfg. An ethereum ledger without
// a key file can observe states but not submit them.
func New(ctx context.Context, cfg interfaces.LedgerConfig, log *slog.Logger) (interfaces.LedgerClient, error) {
	switch cfg.Type {
	case "", MemoryLedgerType:
		return NewMemoryLedger(), nil
	case EthereumLedgerType:
		return newEthereumLedger(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unsupported ledger type %q", cfg.Type)
	}
}

func newEthereumLedger(ctx context.Context, cfg interfaces.LedgerConfig, log *slog.Logger) (*EthereumLedger, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid state registry address %q", cfg.ContractAddress)
	}

	client, err := ethclient.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("could not connect to %s: %w", cfg.URL, err)
	}

	l, err := NewEthereumLedger(client, client, common.HexToAddress(cfg.ContractAddress), log)
	if err != nil {
		return nil, err
	}
	if cfg.KeyFile == "" {
		log.Warn("No ledger key file configured, state updates cannot be submitted")
		return l, nil
	}

	keys, err := cryptoutils.ReadClientKeys(cfg.KeyFile, "")
	if err != nil {
		return nil, fmt.Errorf("could not load ledger key: %w", err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = client.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("could not query chain id: %w", err)
		}
	}

	auth, err := bind.NewKeyedTransactorWithChainID(keys.ECDSA(), chainID)
	if err != nil {
		return nil, err
	}
	l.SetTransactOpts(auth)

	log.Info("Connected to ledger", "url", cfg.URL, "registry", cfg.ContractAddress, "chainID", chainID, "submitter", keys.Address().Hex())
	return l, nil
}
