package enclave

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/pdo-contract-client/api"
	"github.com/ruteri/pdo-contract-client/cryptoutils"
	"github.com/ruteri/pdo-contract-client/interfaces"
)

// maxResponseSize bounds what is read from an enclave.
const maxResponseSize = 8 * 1024 * 1024

// Client is an interfaces.EnclaveService reached over HTTP.
type Client struct {
	url        string
	info       api.EnclaveInfoResponse
	httpClient *http.Client
	log        *slog.Logger
}

func (c *Client) EnclaveID() interfaces.EnclaveID {
	return c.info.EnclaveID
}

func (c *Client) URL() string {
	return c.url
}

// Info returns the verified identity the enclave presented on connect.
func (c *Client) Info() api.EnclaveInfoResponse {
	return c.info
}

// Evaluate submits the request and returns the enclave's verified response.
// All failures wrap interfaces.ErrEvaluation.
func (c *Client) Evaluate(ctx context.Context, req *interfaces.UpdateRequest) (*interfaces.UpdateResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: could not encode request: %w", interfaces.ErrEvaluation, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+api.InvokePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: could not initialize request: %w", interfaces.ErrEvaluation, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: could not reach enclave %s: %w", interfaces.ErrEvaluation, c.url, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: could not read response: %w", interfaces.ErrEvaluation, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: enclave returned %d: %s", interfaces.ErrEvaluation, httpResp.StatusCode, errorMessage(data))
	}

	var resp interfaces.UpdateResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: could not parse response: %w", interfaces.ErrEvaluation, err)
	}

	if err := c.verifyResponse(req, &resp); err != nil {
		c.log.Warn("Discarding unverifiable enclave response", "err", err, "enclaveID", c.info.EnclaveID, "contractID", req.ContractID)
		return nil, fmt.Errorf("%w: %w", interfaces.ErrEvaluation, err)
	}
	return &resp, nil
}

// verifyResponse checks that the response is signed by this enclave and
// answers this request.
func (c *Client) verifyResponse(req *interfaces.UpdateRequest, resp *interfaces.UpdateResponse) error {
	if interfaces.NewEnclaveID(string(resp.EnclaveID)) != c.info.EnclaveID {
		return fmt.Errorf("response from enclave %s, expected %s", resp.EnclaveID, c.info.EnclaveID)
	}
	if err := cryptoutils.VerifySignatureFrom(ethcommon.HexToAddress(string(c.info.EnclaveID)), resp.Digest(), resp.Signature); err != nil {
		return fmt.Errorf("enclave signature: %w", err)
	}
	if resp.ContractID != req.ContractID {
		return fmt.Errorf("response for contract %q, expected %q", resp.ContractID, req.ContractID)
	}
	if !bytes.Equal(resp.InvocationHash, req.InvocationHash) {
		return fmt.Errorf("response for a different invocation")
	}
	if !bytes.Equal(resp.OldStateHash, req.StateHash) {
		return fmt.Errorf("response evaluated against a different state")
	}
	if resp.StateChanged {
		if !resp.Status {
			return fmt.Errorf("failed invocation reports a state change")
		}
		if !bytes.Equal(cryptoutils.ComputeStateHash(resp.RawState), resp.NewStateHash) {
			return fmt.Errorf("raw state does not match new state hash")
		}
	}
	return nil
}

func errorMessage(data []byte) string {
	var errResp api.ErrorResponse
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error != "" {
		return errResp.Error
	}
	return strings.TrimSpace(string(data))
}
