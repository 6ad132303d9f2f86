package entreprise

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/budget-france/chorus-backend/pkg/config"
	apperrors "github.com/budget-france/chorus-backend/pkg/errors"
)

const defaultRetryAfter = 60 * time.Second

// Etablissement carries the denormalized fields looked up for a SIRET.
type Etablissement struct {
	Siret              string
	Denomination       *string
	Adresse            *string
	CodeCommune        *string
	CategorieJuridique *string
	CodeQpv            *string
}

// Fetcher is the consumer-side contract for registry lookups.
type Fetcher interface {
	FetchEtablissement(ctx context.Context, siret string) (*Etablissement, error)
}

// Client queries the companies registry API. It is constructor-injected
// everywhere so tests substitute a fake Fetcher.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func NewClient(cfg config.EntrepriseConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
	}
}

type etablissementResponse struct {
	Data struct {
		Siret       string `json:"siret"`
		UniteLegale struct {
			PersonneMoraleAttributs struct {
				RaisonSociale *string `json:"raison_sociale"`
			} `json:"personne_morale_attributs"`
			FormeJuridique struct {
				Code *string `json:"code"`
			} `json:"forme_juridique"`
		} `json:"unite_legale"`
		Adresse struct {
			CodeCommune             *string `json:"code_commune"`
			LibelleVoie             *string `json:"libelle_voie"`
			NumeroVoie              *string `json:"numero_voie"`
			CodePostal              *string `json:"code_postal"`
			LibelleCommune          *string `json:"libelle_commune"`
			CodeQuartierPrioritaire *string `json:"code_quartier_prioritaire"`
		} `json:"adresse"`
	} `json:"data"`
}

// FetchEtablissement resolves a SIRET. HTTP 429 surfaces as a rate limit
// error carrying the upstream cooldown so the pipeline reschedules the whole
// chunk instead of failing it.
func (c *Client) FetchEtablissement(ctx context.Context, siret string) (*Etablissement, error) {
	url := fmt.Sprintf("%s/v3/insee/sirene/etablissements/%s", c.baseURL, siret)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building etablissement request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, "calling companies registry", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperrors.RateLimited("companies registry rate limit hit", retryAfterFrom(resp))
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("siret %s not found", siret))
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperrors.New(apperrors.CodeDependency,
			fmt.Sprintf("companies registry returned %d: %s", resp.StatusCode, string(body)))
	}

	var payload etablissementResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, "decoding etablissement response", err)
	}

	data := payload.Data
	result := &Etablissement{
		Siret:              data.Siret,
		Denomination:       data.UniteLegale.PersonneMoraleAttributs.RaisonSociale,
		CodeCommune:        data.Adresse.CodeCommune,
		CategorieJuridique: data.UniteLegale.FormeJuridique.Code,
		CodeQpv:            data.Adresse.CodeQuartierPrioritaire,
	}
	if addr := formatAdresse(data.Adresse.NumeroVoie, data.Adresse.LibelleVoie, data.Adresse.CodePostal, data.Adresse.LibelleCommune); addr != "" {
		result.Adresse = &addr
	}
	return result, nil
}

func formatAdresse(parts ...*string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != nil && *p != "" {
			kept = append(kept, *p)
		}
	}
	return strings.Join(kept, " ")
}

func retryAfterFrom(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return defaultRetryAfter
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultRetryAfter
}
