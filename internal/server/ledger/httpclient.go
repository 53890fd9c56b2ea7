package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/lifexhealth/medvault/internal/common"
)

// HTTPRegistry talks JSON over HTTP to the registry gateway. Every call
// carries the configured timeout: a slow registry fails with a
// distinguishable error instead of hanging the requester.
type HTTPRegistry struct {
	baseURL string
	client  *http.Client
}

func NewHTTPRegistry(baseURL string, timeout time.Duration) *HTTPRegistry {
	return &HTTPRegistry{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type registerRequest struct {
	DocumentID    string `json:"document_id"`
	Digest        string `json:"digest"`
	OwnerIdentity string `json:"owner_identity"`
}

type registerResponse struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber int64  `json:"block_number"`
}

type lookupResponse struct {
	Digest string `json:"digest"`
}

func (r *HTTPRegistry) Register(ctx context.Context, documentID, digest, ownerIdentity string) (*Receipt, error) {
	body, err := json.Marshal(registerRequest{
		DocumentID:    documentID,
		Digest:        digest,
		OwnerIdentity: ownerIdentity,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"documents", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrRegistryUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var out registerResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("%w: decoding receipt: %v", common.ErrRegistryUnavailable, err)
		}
		return &Receipt{TxHash: out.TxHash, BlockNumber: out.BlockNumber}, nil
	case http.StatusConflict:
		return nil, common.ErrDuplicateAnchor
	default:
		return nil, fmt.Errorf("%w: status %d", common.ErrRegistryUnavailable, resp.StatusCode)
	}
}

func (r *HTTPRegistry) Lookup(ctx context.Context, documentID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"documents/"+url.PathEscape(documentID), nil)
	if err != nil {
		return "", err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrRegistryUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out lookupResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("%w: decoding lookup: %v", common.ErrRegistryUnavailable, err)
		}
		return out.Digest, nil
	case http.StatusNotFound:
		return "", common.ErrNotFound
	default:
		return "", fmt.Errorf("%w: status %d", common.ErrRegistryUnavailable, resp.StatusCode)
	}
}
