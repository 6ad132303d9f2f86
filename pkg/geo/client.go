package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/budget-france/chorus-backend/pkg/config"
	apperrors "github.com/budget-france/chorus-backend/pkg/errors"
)

// CommuneInfo is the geo API projection used to enrich commune rows.
type CommuneInfo struct {
	Code             string
	Label            *string
	CodeDepartement  *string
	LabelDepartement *string
	CodeRegion       *string
	LabelRegion      *string
	CodeEpci         *string
	LabelEpci        *string
}

// Fetcher is the consumer-side contract for commune lookups.
type Fetcher interface {
	FetchCommune(ctx context.Context, code string) (*CommuneInfo, error)
}

// Client queries the public geo API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient(cfg config.GeoConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
	}
}

type communeResponse struct {
	Code        string  `json:"code"`
	Nom         *string `json:"nom"`
	CodeEpci    *string `json:"codeEpci"`
	Departement *struct {
		Code string `json:"code"`
		Nom  string `json:"nom"`
	} `json:"departement"`
	Region *struct {
		Code string `json:"code"`
		Nom  string `json:"nom"`
	} `json:"region"`
	Epci *struct {
		Code string `json:"code"`
		Nom  string `json:"nom"`
	} `json:"epci"`
}

// FetchCommune resolves one INSEE commune code.
func (c *Client) FetchCommune(ctx context.Context, code string) (*CommuneInfo, error) {
	url := fmt.Sprintf("%s/communes/%s?fields=nom,codeEpci,epci,departement,region", c.baseURL, code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building commune request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, "calling geo api", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("commune %s not found", code))
	case resp.StatusCode >= 400:
		return nil, apperrors.New(apperrors.CodeDependency,
			fmt.Sprintf("geo api returned %d for commune %s", resp.StatusCode, code))
	}

	var payload communeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, "decoding commune response", err)
	}

	info := &CommuneInfo{
		Code:     payload.Code,
		Label:    payload.Nom,
		CodeEpci: payload.CodeEpci,
	}
	if payload.Departement != nil {
		info.CodeDepartement = &payload.Departement.Code
		info.LabelDepartement = &payload.Departement.Nom
	}
	if payload.Region != nil {
		info.CodeRegion = &payload.Region.Code
		info.LabelRegion = &payload.Region.Nom
	}
	if payload.Epci != nil {
		if info.CodeEpci == nil {
			info.CodeEpci = &payload.Epci.Code
		}
		info.LabelEpci = &payload.Epci.Nom
	}
	return info, nil
}
