package services

import (
	"github.com/loserner/CipherTrace/deploy"
	"github.com/loserner/CipherTrace/ledger"
)

// Response is the envelope every gateway endpoint returns.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// InitializeRequest configures the gateway's signing identity.
type InitializeRequest struct {
	RPCURL     string `json:"rpcUrl"`
	PrivateKey string `json:"privateKey"`
}

// StatusSnapshot describes gateway configuration and ledger totals.
type StatusSnapshot struct {
	Initialized  bool                      `json:"isInitialized"`
	HasSigner    bool                      `json:"hasSigner"`
	HasContracts bool                      `json:"hasContracts"`
	Signer       string                    `json:"signer,omitempty"`
	Contracts    *deploy.ContractAddresses `json:"contracts,omitempty"`
	Counts       ledger.Counts             `json:"counts"`
	Mode         string                    `json:"mode"`
}

// StatusResponse wraps the status snapshot.
type StatusResponse struct {
	Response
	Status StatusSnapshot `json:"status"`
}

// EncryptRequest submits one transaction for sealing and registration.
type EncryptRequest struct {
	TransactionData *ledger.TransactionData `json:"transactionData"`
}

// EncryptResponse returns the minted data handle.
type EncryptResponse struct {
	Response
	DataID string `json:"dataId,omitempty"`
}

// EncryptBatchRequest submits up to the batch limit of transactions.
type EncryptBatchRequest struct {
	Transactions []ledger.TransactionData `json:"transactions"`
}

// BatchItemResult reports the outcome of one batch item. Partial success is
// always reported per item, never as a single boolean.
type BatchItemResult struct {
	Index  int    `json:"index"`
	OK     bool   `json:"ok"`
	DataID string `json:"dataId,omitempty"`
	Error  string `json:"error,omitempty"`
}

// EncryptBatchResponse returns per-item results in submission order.
type EncryptBatchResponse struct {
	Response
	Results []BatchItemResult `json:"results"`
}

// AnalyzeRequest asks for a computation over previously minted handles.
type AnalyzeRequest struct {
	EncryptedTransactions []string `json:"encryptedTransactions"`
}

// AnalyzeResponse returns the minted analysis request.
type AnalyzeResponse struct {
	Response
	AnalysisID string                `json:"analysisId,omitempty"`
	Status     ledger.AnalysisStatus `json:"status,omitempty"`
}

// AnalysisView is the externally visible form of an analysis request.
type AnalysisView struct {
	ID           string                `json:"analysisId"`
	Kind         ledger.AnalysisKind   `json:"kind"`
	Status       ledger.AnalysisStatus `json:"status"`
	InputCount   int                   `json:"inputCount"`
	ResultHandle string                `json:"encryptedResult,omitempty"`
	CreatedAt    string                `json:"createdAt"`
	CompletedAt  string                `json:"completedAt,omitempty"`
}

// AnalysisStatusResponse wraps a polled analysis request.
type AnalysisStatusResponse struct {
	Response
	Analysis *AnalysisView `json:"analysis,omitempty"`
}

// DecryptRequest forwards an opaque result handle to the sealer.
type DecryptRequest struct {
	EncryptedResult string `json:"encryptedResult"`
}

// DecryptResponse returns the revealed scalar.
type DecryptResponse struct {
	Response
	DecryptedResult float64 `json:"decryptedResult"`
}

// ContractsRequest binds the deployed contract addresses.
type ContractsRequest struct {
	TransactionAnalyzerAddress string `json:"transactionAnalyzerAddress"`
	PrivateAnalyzerAddress     string `json:"privateAnalyzerAddress"`
	FHEVMInterfaceAddress      string `json:"fhevmInterfaceAddress"`
}

// ContractsResponse echoes the bound addresses.
type ContractsResponse struct {
	Response
	Contracts *deploy.ContractAddresses `json:"contracts,omitempty"`
}

// ListResponse returns owner-scoped identifier pages.
type ListResponse struct {
	Response
	IDs []string `json:"ids"`
}

// HealthResponse reports liveness of the gateway's dependencies.
type HealthResponse struct {
	Response
	Healthy   bool           `json:"healthy"`
	Status    StatusSnapshot `json:"status"`
	Timestamp string         `json:"timestamp"`
}
