package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ruteri/pdo-contract-client/api"
	"github.com/ruteri/pdo-contract-client/contract"
	"github.com/ruteri/pdo-contract-client/cryptoutils"
	"github.com/ruteri/pdo-contract-client/interfaces"
	"github.com/ruteri/pdo-contract-client/metrics"
)

// maxBodySize is the maximum allowed request body size (4MB).
const maxBodySize = 4 * 1024 * 1024

// RequestError provides structured error information for HTTP responses.
type RequestError struct {
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	return e.Err.Error()
}

// Handler evaluates update requests against the key/value contract and signs
// the results with the enclave key.
type Handler struct {
	keys      *cryptoutils.ClientKeys
	enclaveID interfaces.EnclaveID
	info      api.EnclaveInfoResponse
	metrics   *metrics.Collector
	log       *slog.Logger
}

// NewHandler creates a handler signing with keys. A nil attestation provider
// serves no attestation.
func NewHandler(keys *cryptoutils.ClientKeys, attestation cryptoutils.AttestationProvider, log *slog.Logger) (*Handler, error) {
	enclaveID := interfaces.NewEnclaveID(keys.Identity())
	info := api.EnclaveInfoResponse{
		EnclaveID:    enclaveID,
		VerifyingKey: keys.PublicKey(),
	}

	if attestation != nil {
		evidence, err := attestation.Attest(cryptoutils.EnclaveReportData(info.VerifyingKey))
		if err != nil {
			return nil, fmt.Errorf("failed to attest enclave key: %w", err)
		}
		info.AttestationType = string(attestation.AttestationType())
		info.Attestation = evidence
	}

	return &Handler{
		keys:      keys,
		enclaveID: enclaveID,
		info:      info,
		log:       log,
	}, nil
}

func (h *Handler) EnclaveID() interfaces.EnclaveID {
	return h.enclaveID
}

// HandleInfo serves the enclave identity and attestation.
//
// URL format: GET /info
func (h *Handler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.info, h.log)
}

// HandleInvoke evaluates a signed update request.
//
// URL format: POST /invoke
// Request body: api.InvokeRequest
//
// A refused invocation is answered with 200 and Status false. Malformed or
// unauthenticated requests get a 4xx with api.ErrorResponse.
func (h *Handler) HandleInvoke(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	var req api.InvokeRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("invalid request body: %w", err)})
		return
	}

	resp, reqErr := h.evaluate(&req)
	if reqErr != nil {
		h.log.Warn("Invocation not evaluated", "err", reqErr, "contractID", req.ContractID, "method", req.Invocation.Method)
		h.writeError(w, reqErr)
		return
	}

	h.log.Debug("Invocation evaluated",
		"contractID", req.ContractID,
		"method", req.Invocation.Method,
		"status", resp.Status,
		"stateChanged", resp.StateChanged)

	writeJSON(w, http.StatusOK, resp, h.log)
}

func (h *Handler) evaluate(req *interfaces.UpdateRequest) (*interfaces.UpdateResponse, *RequestError) {
	if interfaces.NewEnclaveID(string(req.EnclaveID)) != h.enclaveID {
		return nil, &RequestError{StatusCode: http.StatusForbidden, Err: fmt.Errorf("request addressed to enclave %s", req.EnclaveID)}
	}
	if req.ContractID == "" {
		return nil, &RequestError{StatusCode: http.StatusBadRequest, Err: errors.New("missing contract id")}
	}
	if err := contract.VerifyUpdateRequest(req); err != nil {
		return nil, &RequestError{StatusCode: http.StatusUnauthorized, Err: fmt.Errorf("request verification failed: %w", err)}
	}

	state, err := decodeKVState(req.State)
	if err != nil {
		return nil, &RequestError{StatusCode: http.StatusUnprocessableEntity, Err: err}
	}

	resp := &interfaces.UpdateResponse{
		ContractID:     req.ContractID,
		EnclaveID:      h.enclaveID,
		OldStateHash:   bytes.Clone(req.StateHash),
		NewStateHash:   bytes.Clone(req.StateHash),
		InvocationHash: bytes.Clone(req.InvocationHash),
	}

	result, err := h.invoke(state, &req.Invocation)
	switch {
	case errors.Is(err, errRejected):
		resp.InvocationResponse = err.Error()
	case err != nil:
		return nil, &RequestError{StatusCode: http.StatusInternalServerError, Err: err}
	default:
		encoded, err := json.Marshal(result.value)
		if err != nil {
			return nil, &RequestError{StatusCode: http.StatusInternalServerError, Err: fmt.Errorf("failed to encode result: %w", err)}
		}
		resp.Status = true
		resp.InvocationResponse = string(encoded)

		if result.changed {
			raw, err := state.encode()
			if err != nil {
				return nil, &RequestError{StatusCode: http.StatusInternalServerError, Err: fmt.Errorf("failed to encode state: %w", err)}
			}
			resp.StateChanged = true
			resp.RawState = raw
			resp.NewStateHash = cryptoutils.ComputeStateHash(raw)
		}
	}
	h.metrics.ObserveInvocation(req.Invocation.Method, resp.Status)

	resp.Signature, err = h.keys.Sign(resp.Digest())
	if err != nil {
		return nil, &RequestError{StatusCode: http.StatusInternalServerError, Err: fmt.Errorf("failed to sign response: %w", err)}
	}
	return resp, nil
}

func (h *Handler) invoke(state kvState, invocation *interfaces.InvocationRequest) (kvResult, error) {
	method, ok := kvMethods[invocation.Method]
	if !ok {
		return kvResult{}, reject("unknown method %q", invocation.Method)
	}
	return method(state, &kvArgs{positional: invocation.PositionalParameters, keyword: invocation.KeywordParameters})
}

func (h *Handler) writeError(w http.ResponseWriter, err *RequestError) {
	writeJSON(w, err.StatusCode, api.ErrorResponse{Error: err.Error()}, h.log)
}

func writeJSON(w http.ResponseWriter, status int, body any, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error("Failed to encode response", "err", err)
	}
}
