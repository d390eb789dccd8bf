package cryptoutils

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	tdx_abi "github.com/google/go-tdx-guest/abi"
	tdx_client "github.com/google/go-tdx-guest/client"
	tdx_pb "github.com/google/go-tdx-guest/proto/tdx"
	"github.com/google/go-tdx-guest/verify"
)

// AttestationType names the evidence format an enclave presents.
type AttestationType string

const (
	DCAPAttestation  AttestationType = "qemu-tdx"
	DummyAttestation AttestationType = "dummy"
	NoAttestation    AttestationType = ""
)

// ErrAttestation is returned when enclave evidence does not verify.
var ErrAttestation = errors.New("attestation verification failed")

func AttestationTypeFromString(str string) (AttestationType, error) {
	switch AttestationType(str) {
	case DCAPAttestation, DummyAttestation, NoAttestation:
		return AttestationType(str), nil
	default:
		return "", fmt.Errorf("%w: attestation type %q", errors.ErrUnsupported, str)
	}
}

// EnclaveReportData binds an enclave's verifying key into the 64 bytes of
// report data carried by its quote.
func EnclaveReportData(verifyingKey []byte) [64]byte {
	var reportData [64]byte
	copy(reportData[:32], ComputeStateHash(verifyingKey))
	copy(reportData[32:], ComputeMessageHash(verifyingKey))
	return reportData
}

type AttestationProvider interface {
	AttestationType() AttestationType
	Attest(reportData [64]byte) ([]byte, error)
}

// AttestationProviderFor returns the provider producing evidence of type t.
func AttestationProviderFor(t AttestationType) (AttestationProvider, error) {
	switch t {
	case DCAPAttestation:
		return DCAPAttestationProvider{}, nil
	case DummyAttestation:
		return DummyAttestationProvider{}, nil
	default:
		return nil, fmt.Errorf("%w: attestation type %q", errors.ErrUnsupported, t)
	}
}

type DCAPAttestationProvider struct{}

func (DCAPAttestationProvider) AttestationType() AttestationType { return DCAPAttestation }

func (DCAPAttestationProvider) Attest(reportData [64]byte) ([]byte, error) {
	qp := &tdx_client.LinuxConfigFsQuoteProvider{}
	if qp.IsSupported() == nil {
		return qp.GetRawQuote(reportData)
	}

	qd, err := tdx_client.OpenDevice()
	if err != nil {
		return nil, err
	}
	defer qd.Close()

	return tdx_client.GetRawQuote(qd, reportData)
}

// DummyAttestationProvider produces unverifiable evidence for local development.
type DummyAttestationProvider struct{}

func (DummyAttestationProvider) AttestationType() AttestationType { return DummyAttestation }

func (DummyAttestationProvider) Attest(reportData [64]byte) ([]byte, error) {
	return dummyEvidence(reportData), nil
}

func dummyEvidence(reportData [64]byte) []byte {
	return []byte(fmt.Sprintf("Attestation for enclave %x", reportData))
}

// VerifyAttestation checks evidence of the given type against the expected
// report data and returns the measurements it attests to.
func VerifyAttestation(t AttestationType, reportData [64]byte, evidence []byte) (map[int]string, error) {
	switch t {
	case DCAPAttestation:
		return VerifyDCAPAttestation(reportData, evidence)
	case DummyAttestation:
		if !bytes.Equal(evidence, dummyEvidence(reportData)) {
			return nil, fmt.Errorf("%w: dummy evidence does not match report data", ErrAttestation)
		}
		return map[int]string{}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported type %q", ErrAttestation, t)
	}
}

func VerifyDCAPAttestation(reportData [64]byte, report []byte) (map[int]string, error) {
	protoQuote, err := tdx_abi.QuoteToProto(report)
	if err != nil {
		return nil, fmt.Errorf("%w: could not parse quote: %w", ErrAttestation, err)
	}

	v4Quote, ok := protoQuote.(*tdx_pb.QuoteV4)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported quote type: %T", ErrAttestation, protoQuote)
	}

	options := verify.DefaultOptions()
	if err := verify.TdxQuote(protoQuote, options); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAttestation, err)
	}

	if !bytes.Equal(v4Quote.TdQuoteBody.ReportData, reportData[:]) {
		return nil, fmt.Errorf("%w: invalid report data %x, expected %x", ErrAttestation, v4Quote.TdQuoteBody.ReportData, reportData[:])
	}

	measurements := map[int]string{
		0: hex.EncodeToString(v4Quote.TdQuoteBody.MrTd),
		1: hex.EncodeToString(v4Quote.TdQuoteBody.Rtmrs[0]),
		2: hex.EncodeToString(v4Quote.TdQuoteBody.Rtmrs[1]),
		3: hex.EncodeToString(v4Quote.TdQuoteBody.Rtmrs[2]),
		4: hex.EncodeToString(v4Quote.TdQuoteBody.Rtmrs[3]),
		5: hex.EncodeToString(v4Quote.TdQuoteBody.MrConfigId),
		6: hex.EncodeToString(v4Quote.TdQuoteBody.MrOwner),
		7: hex.EncodeToString(v4Quote.TdQuoteBody.MrOwnerConfig),
	}

	return measurements, nil
}
