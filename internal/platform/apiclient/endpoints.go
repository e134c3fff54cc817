package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"
)

// ListPatients calls GET /patients/.
func (c *Client) ListPatients(ctx context.Context) ([]Patient, error) {
	return getList[Patient](ctx, c, "/patients/", nil, "patients")
}

// PredictRisk calls POST /cds/risk-prediction.
func (c *Client) PredictRisk(ctx context.Context, req RiskRequest) (*RiskResult, error) {
	const path = "/cds/risk-prediction"
	var out RiskResult
	if err := c.postObject(ctx, c.timeout, path, req, &out, "prediction", "result", "data"); err != nil {
		return nil, err
	}
	if !out.Present() {
		return nil, emptyError(http.MethodPost, path)
	}
	return &out, nil
}

// RecommendTreatment calls POST /cds/treatment-recommendation.
func (c *Client) RecommendTreatment(ctx context.Context, req TreatmentRequest) (*TreatmentResult, error) {
	const path = "/cds/treatment-recommendation"
	var out TreatmentResult
	if err := c.postObject(ctx, c.timeout, path, req, &out, "recommendation", "result", "data"); err != nil {
		return nil, err
	}
	if !out.Present() {
		return nil, emptyError(http.MethodPost, path)
	}
	return &out, nil
}

// ListServices calls GET /cds/services.
func (c *Client) ListServices(ctx context.Context) ([]Service, error) {
	return getList[Service](ctx, c, "/cds/services", nil, "services")
}

// GenerateSynthetic calls POST /synthetic-data/generate with the long timeout.
func (c *Client) GenerateSynthetic(ctx context.Context, req SyntheticRequest) (*SyntheticResult, error) {
	const path = "/synthetic-data/generate"
	var out SyntheticResult
	if err := c.do(ctx, c.longTimeout, http.MethodPost, path, nil, req, &out); err != nil {
		return nil, err
	}
	if len(out.Patients) == 0 {
		return nil, emptyError(http.MethodPost, path)
	}
	return &out, nil
}

// ListDataSources calls GET /data-collection/sources.
func (c *Client) ListDataSources(ctx context.Context) ([]DataSource, error) {
	return getList[DataSource](ctx, c, "/data-collection/sources", nil, "sources")
}

// ListDatasets calls GET /data-collection/datasets.
func (c *Client) ListDatasets(ctx context.Context) ([]Dataset, error) {
	return getList[Dataset](ctx, c, "/data-collection/datasets", nil, "datasets")
}

// CollectionStatistics calls GET /data-collection/statistics.
func (c *Client) CollectionStatistics(ctx context.Context) (*CollectionStats, error) {
	var out CollectionStats
	if err := c.getObject(ctx, "/data-collection/statistics", nil, &out, "statistics", "data"); err != nil {
		return nil, err
	}
	return &out, nil
}

// ImportToDatabase calls POST /data-collection/import-to-database with the
// long timeout.
func (c *Client) ImportToDatabase(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	var out ImportResult
	if err := c.postObject(ctx, c.longTimeout, "/data-collection/import-to-database", req, &out, "result", "data"); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMRIReports calls GET /imaging/mri/reports.
func (c *Client) ListMRIReports(ctx context.Context, q MRIQuery) ([]MRIReport, error) {
	return getList[MRIReport](ctx, c, "/imaging/mri/reports", q, "reports")
}

// PatientMonitoring calls GET /monitoring/patients/{id}/monitoring.
func (c *Client) PatientMonitoring(ctx context.Context, patientID string) (*Monitoring, error) {
	path := "/monitoring/patients/" + url.PathEscape(patientID) + "/monitoring"
	var out Monitoring
	if err := c.getObject(ctx, path, nil, &out, "monitoring", "data"); err != nil {
		return nil, err
	}
	if len(out.Timeline) == 0 && len(out.Alerts) == 0 {
		return nil, emptyError(http.MethodGet, path)
	}
	return &out, nil
}

// ListModels calls GET /ml-models/models.
func (c *Client) ListModels(ctx context.Context, q ModelQuery) ([]Model, error) {
	return getList[Model](ctx, c, "/ml-models/models", q, "models")
}

// getList fetches a listing. An empty body is an empty listing, not an error.
func getList[T any](ctx context.Context, c *Client, path string, params any, keys ...string) ([]T, error) {
	var raw json.RawMessage
	err := c.do(ctx, c.timeout, http.MethodGet, path, params, nil, &raw)
	if IsEmpty(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	items, err := DecodeList[T](raw, keys...)
	if err != nil {
		return nil, &Error{Kind: KindServer, Method: http.MethodGet, Path: path, Message: "malformed response", Err: err}
	}
	return items, nil
}

func (c *Client) getObject(ctx context.Context, path string, params, out any, wrappers ...string) error {
	var raw json.RawMessage
	if err := c.do(ctx, c.timeout, http.MethodGet, path, params, nil, &raw); err != nil {
		return err
	}
	return decodeObject(http.MethodGet, path, raw, out, wrappers)
}

func (c *Client) postObject(ctx context.Context, timeout time.Duration, path string, body, out any, wrappers ...string) error {
	var raw json.RawMessage
	if err := c.do(ctx, timeout, http.MethodPost, path, nil, body, &raw); err != nil {
		return err
	}
	return decodeObject(http.MethodPost, path, raw, out, wrappers)
}

// decodeObject decodes a single result, unwrapping it when the backend nests
// it under one of wrappers.
func decodeObject(method, path string, raw json.RawMessage, out any, wrappers []string) error {
	raw = unwrap(raw, wrappers)
	if isBlank(raw) {
		return emptyError(method, path)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Kind: KindServer, Method: method, Path: path, Message: "malformed response", Err: err}
	}
	return nil
}

func unwrap(raw json.RawMessage, wrappers []string) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return trimmed
	}
	for _, w := range wrappers {
		inner, ok := obj[w]
		if !ok {
			continue
		}
		inner = bytes.TrimSpace(inner)
		if len(inner) > 0 && inner[0] == '{' {
			return inner
		}
	}
	return trimmed
}
