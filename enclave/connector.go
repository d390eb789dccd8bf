package enclave

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ruteri/pdo-contract-client/api"
	"github.com/ruteri/pdo-contract-client/common"
	"github.com/ruteri/pdo-contract-client/cryptoutils"
	"github.com/ruteri/pdo-contract-client/interfaces"
)

const defaultCacheSize = 128

type ConnectorOpts struct {
	// HTTPClient defaults to a client with no timeout; deadlines come from
	// the caller's context.
	HTTPClient *http.Client

	// RequireAttestation rejects enclaves that do not present evidence of
	// this type. NoAttestation accepts any enclave, verifying evidence when
	// it is presented.
	RequireAttestation cryptoutils.AttestationType

	CacheSize int
	Log       *slog.Logger
}

// Connector opens enclave services by URL and caches their verified identity.
type Connector struct {
	httpClient         *http.Client
	requireAttestation cryptoutils.AttestationType
	cache              *lru.Cache[string, api.EnclaveInfoResponse]
	log                *slog.Logger
}

func NewConnector(opts ConnectorOpts) (*Connector, error) {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}

	cache, err := lru.New[string, api.EnclaveInfoResponse](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("could not create enclave cache: %w", err)
	}

	return &Connector{
		httpClient:         opts.HTTPClient,
		requireAttestation: opts.RequireAttestation,
		cache:              cache,
		log:                opts.Log,
	}, nil
}

// Connect returns a client for the enclave at serviceURL. Errors wrap
// interfaces.ErrConnection.
func (c *Connector) Connect(ctx context.Context, serviceURL string) (interfaces.EnclaveService, error) {
	if !common.ValidServiceURL(serviceURL) {
		return nil, fmt.Errorf("%w: invalid service url %q", interfaces.ErrConnection, serviceURL)
	}
	serviceURL = strings.TrimRight(serviceURL, "/")

	info, ok := c.cache.Get(serviceURL)
	if !ok {
		fetched, err := c.fetchInfo(ctx, serviceURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", interfaces.ErrConnection, serviceURL, err)
		}
		if err := c.verifyInfo(fetched); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", interfaces.ErrConnection, serviceURL, err)
		}
		info = *fetched
		c.cache.Add(serviceURL, info)
		c.log.Debug("Connected to enclave service", "url", serviceURL, "enclaveID", info.EnclaveID, "attestationType", info.AttestationType)
	}

	return &Client{
		url:        serviceURL,
		info:       info,
		httpClient: c.httpClient,
		log:        c.log,
	}, nil
}

// Forget drops a cached identity, for example after an enclave was replaced.
func (c *Connector) Forget(serviceURL string) {
	c.cache.Remove(strings.TrimRight(serviceURL, "/"))
}

func (c *Connector) fetchInfo(ctx context.Context, serviceURL string) (*api.EnclaveInfoResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serviceURL+api.InfoPath, nil)
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not request enclave info: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("could not read enclave info: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("enclave info returned %d: %s", resp.StatusCode, errorMessage(body))
	}

	var info api.EnclaveInfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("could not parse enclave info: %w", err)
	}

	c.log.Debug("Fetched enclave info", "url", serviceURL, slog.Duration("duration", time.Since(start)))
	return &info, nil
}

// verifyInfo checks that the enclave id belongs to the verifying key and that
// the attestation, if any, binds that key.
func (c *Connector) verifyInfo(info *api.EnclaveInfoResponse) error {
	addr, err := cryptoutils.AddressFromPublicKey(info.VerifyingKey)
	if err != nil {
		return fmt.Errorf("invalid verifying key: %w", err)
	}
	if interfaces.NewEnclaveID(addr.Hex()) != interfaces.NewEnclaveID(string(info.EnclaveID)) {
		return fmt.Errorf("enclave id %s does not match verifying key", info.EnclaveID)
	}
	info.EnclaveID = interfaces.NewEnclaveID(string(info.EnclaveID))

	attestationType, err := cryptoutils.AttestationTypeFromString(info.AttestationType)
	if err != nil {
		return err
	}
	if c.requireAttestation != cryptoutils.NoAttestation && attestationType != c.requireAttestation {
		return fmt.Errorf("%w: expected %q attestation, enclave presented %q", cryptoutils.ErrAttestation, c.requireAttestation, attestationType)
	}
	if attestationType == cryptoutils.NoAttestation {
		return nil
	}

	measurements, err := cryptoutils.VerifyAttestation(attestationType, cryptoutils.EnclaveReportData(info.VerifyingKey), info.Attestation)
	if err != nil {
		return err
	}
	c.log.Debug("Verified enclave attestation", "enclaveID", info.EnclaveID, "type", attestationType, "measurements", measurements)
	return nil
}
