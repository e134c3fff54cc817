package apiclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Patient is a record from GET /patients/.
type Patient struct {
	ID          String `json:"id"`
	PatientID   String `json:"patient_id"`
	Name        string `json:"name"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Age         Float  `json:"age"`
	Gender      string `json:"gender"`
	DateOfBirth string `json:"date_of_birth"`
	RiskLevel   string `json:"risk_level"`
	Diagnosis   string `json:"diagnosis"`

	// HasAge is set when the record carried an age, including 0.
	HasAge bool `json:"-"`
}

func (p *Patient) UnmarshalJSON(b []byte) error {
	type plain Patient
	var raw struct {
		plain
		Age json.RawMessage `json:"age"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*p = Patient(raw.plain)
	p.Age, p.HasAge = 0, false
	if v := bytes.TrimSpace(raw.Age); !isBlank(v) && string(v) != `""` {
		if err := p.Age.UnmarshalJSON(v); err != nil {
			return fmt.Errorf("age: %w", err)
		}
		p.HasAge = true
	}
	return nil
}

// Key returns the identifier used to address the patient.
func (p Patient) Key() string {
	if p.ID != "" {
		return p.ID.String()
	}
	return p.PatientID.String()
}

// DisplayName returns the best available name for the patient.
func (p Patient) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	if full := strings.TrimSpace(p.FirstName + " " + p.LastName); full != "" {
		return full
	}
	return "Patient " + p.Key()
}

// RiskRequest is the body of POST /cds/risk-prediction.
type RiskRequest struct {
	Age           int     `json:"age"`
	Gender        string  `json:"gender"`
	BMI           float64 `json:"bmi"`
	Smoking       bool    `json:"smoking"`
	Alcohol       bool    `json:"alcohol"`
	GERD          bool    `json:"gerd"`
	FamilyHistory bool    `json:"family_history"`
	PatientID     string  `json:"patient_id,omitempty"`
}

// Contribution is one feature's SHAP contribution to a risk score.
type Contribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

// Contributions accepts {"feature": value} maps or lists of
// {"feature"|"name": ..., "value"|"contribution"|"shap_value"|"importance": ...}.
type Contributions []Contribution

func (cs *Contributions) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if isBlank(b) {
		*cs = nil
		return nil
	}
	switch b[0] {
	case '{':
		var m map[string]Float
		if err := json.Unmarshal(b, &m); err != nil {
			return fmt.Errorf("contributions: %w", err)
		}
		out := make(Contributions, 0, len(m))
		for k, v := range m {
			out = append(out, Contribution{Feature: k, Value: v.Float64()})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Feature < out[j].Feature })
		*cs = out
		return nil
	case '[':
		var items []struct {
			Feature      string `json:"feature"`
			Name         string `json:"name"`
			Value        *Float `json:"value"`
			Contribution *Float `json:"contribution"`
			ShapValue    *Float `json:"shap_value"`
			Importance   *Float `json:"importance"`
		}
		if err := json.Unmarshal(b, &items); err != nil {
			return fmt.Errorf("contributions: %w", err)
		}
		out := make(Contributions, 0, len(items))
		for _, it := range items {
			name := it.Feature
			if name == "" {
				name = it.Name
			}
			if name == "" {
				continue
			}
			var v float64
			for _, candidate := range []*Float{it.Value, it.Contribution, it.ShapValue, it.Importance} {
				if candidate != nil {
					v = candidate.Float64()
					break
				}
			}
			out = append(out, Contribution{Feature: name, Value: v})
		}
		*cs = out
		return nil
	default:
		return fmt.Errorf("contributions: unexpected JSON %q", string(b[:1]))
	}
}

// RiskResult is the response of POST /cds/risk-prediction.
type RiskResult struct {
	RiskScore         Float         `json:"risk_score"`
	RiskLevel         string        `json:"risk_level"`
	Probability       Float         `json:"probability"`
	Confidence        Float         `json:"confidence"`
	ShapValues        Contributions `json:"shap_values"`
	FeatureImportance Contributions `json:"feature_importance"`
	Recommendations   Strings       `json:"recommendations"`
	ModelVersion      string        `json:"model_version"`
}

// Present reports whether the backend returned anything worth rendering.
func (r *RiskResult) Present() bool {
	return r != nil && (r.RiskLevel != "" || r.RiskScore != 0 || r.Probability != 0 || len(r.Features()) > 0)
}

// Features returns the SHAP contributions, falling back to feature importance.
func (r *RiskResult) Features() Contributions {
	if r == nil {
		return nil
	}
	if len(r.ShapValues) > 0 {
		return r.ShapValues
	}
	return r.FeatureImportance
}

// RiskProbability returns the probability of the positive class in [0,1],
// using the risk score when no probability was sent.
func (r *RiskResult) RiskProbability() float64 {
	if r == nil {
		return 0
	}
	p := r.Probability.Float64()
	if p == 0 {
		p = r.RiskScore.Float64()
	}
	if p > 1 && p <= 100 {
		p /= 100
	}
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// StagingRequest carries the tumor staging fields.
type StagingRequest struct {
	TStage            string  `json:"t_stage"`
	NStage            string  `json:"n_stage"`
	MStage            string  `json:"m_stage"`
	TumorLengthCM     float64 `json:"tumor_length_cm"`
	HistologicalGrade string  `json:"histological_grade"`
}

// TreatmentRequest is the body of POST /cds/treatment-recommendation. The
// patient and staging fields are flattened into one object.
type TreatmentRequest struct {
	RiskRequest
	StagingRequest
	RiskLevel string `json:"risk_level,omitempty"`
}

// Treatment is one recommended treatment. The backend sends either an object
// or a bare name.
type Treatment struct {
	Name       string  `json:"name"`
	Rationale  string  `json:"rationale"`
	Confidence float64 `json:"confidence"`
	Priority   string  `json:"priority"`
}

func (t *Treatment) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if isBlank(b) {
		*t = Treatment{}
		return nil
	}
	if b[0] == '"' {
		return json.Unmarshal(b, &t.Name)
	}
	var raw struct {
		Name        string `json:"name"`
		Treatment   string `json:"treatment"`
		Rationale   string `json:"rationale"`
		Description string `json:"description"`
		Confidence  Float  `json:"confidence"`
		Priority    String `json:"priority"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("treatment: %w", err)
	}
	t.Name = raw.Name
	if t.Name == "" {
		t.Name = raw.Treatment
	}
	t.Rationale = raw.Rationale
	if t.Rationale == "" {
		t.Rationale = raw.Description
	}
	t.Confidence = raw.Confidence.Float64()
	t.Priority = raw.Priority.String()
	return nil
}

// TreatmentResult is the response of POST /cds/treatment-recommendation.
type TreatmentResult struct {
	Treatments         []Treatment `json:"treatments"`
	GuidelineReference string      `json:"guideline_reference"`
	Stage              string      `json:"stage"`
	Notes              Strings     `json:"notes"`
}

func (r *TreatmentResult) UnmarshalJSON(b []byte) error {
	var raw struct {
		RecommendedTreatments []Treatment `json:"recommended_treatments"`
		Recommendations       []Treatment `json:"recommendations"`
		Treatments            []Treatment `json:"treatments"`
		GuidelineReference    string      `json:"guideline_reference"`
		Guideline             string      `json:"guideline"`
		Stage                 string      `json:"stage"`
		ClinicalStage         string      `json:"clinical_stage"`
		Notes                 Strings     `json:"notes"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch {
	case len(raw.RecommendedTreatments) > 0:
		r.Treatments = raw.RecommendedTreatments
	case len(raw.Recommendations) > 0:
		r.Treatments = raw.Recommendations
	default:
		r.Treatments = raw.Treatments
	}
	r.GuidelineReference = raw.GuidelineReference
	if r.GuidelineReference == "" {
		r.GuidelineReference = raw.Guideline
	}
	r.Stage = raw.Stage
	if r.Stage == "" {
		r.Stage = raw.ClinicalStage
	}
	r.Notes = raw.Notes
	return nil
}

// Present reports whether the backend returned anything worth rendering.
func (r *TreatmentResult) Present() bool {
	return r != nil && (len(r.Treatments) > 0 || r.Stage != "" || r.GuidelineReference != "")
}

// Service is a CDS service from GET /cds/services.
type Service struct {
	ID          String `json:"id"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Version     string `json:"version"`
	Hook        string `json:"hook"`
}

// DisplayName returns the service name or title.
func (s Service) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Title != "" {
		return s.Title
	}
	return s.ID.String()
}

// CannedServices is shown when the services listing cannot be fetched.
func CannedServices() []Service {
	return []Service{
		{ID: "risk-prediction", Name: "Risk Prediction", Description: "Esophageal cancer risk score with SHAP explanation", Status: "unknown"},
		{ID: "treatment-recommendation", Name: "Treatment Recommendation", Description: "Guideline based treatment options from TNM staging", Status: "unknown"},
		{ID: "synthetic-data", Name: "Synthetic Data", Description: "Synthetic patient cohorts for model development", Status: "unknown"},
	}
}

// Record is a loosely typed row, used for synthetic patients.
type Record map[string]any

// String returns the value at key formatted for display.
func (r Record) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// Keys returns the record's keys in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SyntheticRequest is the body of POST /synthetic-data/generate.
type SyntheticRequest struct {
	Count          int     `json:"num_patients"`
	Seed           *int64  `json:"seed,omitempty"`
	IncludeStaging bool    `json:"include_staging"`
	CancerRatio    float64 `json:"cancer_ratio"`
}

// SyntheticResult is the response of POST /synthetic-data/generate.
type SyntheticResult struct {
	Patients []Record `json:"patients"`
	Summary  Record   `json:"summary"`
}

func (r *SyntheticResult) UnmarshalJSON(b []byte) error {
	patients, err := DecodeList[Record](b, "patients", "synthetic_patients")
	if err != nil && !errors.Is(err, ErrNoList) {
		return err
	}
	r.Patients = patients
	r.Summary = nil

	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var obj struct {
			Summary    Record `json:"summary"`
			Statistics Record `json:"statistics"`
		}
		if err := json.Unmarshal(trimmed, &obj); err == nil {
			r.Summary = obj.Summary
			if r.Summary == nil {
				r.Summary = obj.Statistics
			}
		}
	}
	return nil
}

// DataSource is an external data source from GET /data-collection/sources.
type DataSource struct {
	ID          String `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Status      string `json:"status"`
}

// Dataset is a collected dataset from GET /data-collection/datasets.
type Dataset struct {
	ID          String `json:"id"`
	Name        string `json:"name"`
	Source      string `json:"source"`
	RecordCount Float  `json:"record_count"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

// CollectionStats is the response of GET /data-collection/statistics.
type CollectionStats struct {
	TotalSources  Float  `json:"total_sources"`
	TotalDatasets Float  `json:"total_datasets"`
	TotalRecords  Float  `json:"total_records"`
	LastUpdated   string `json:"last_updated"`
}

// ImportRequest is the body of POST /data-collection/import-to-database.
type ImportRequest struct {
	DatasetID string `json:"dataset_id"`
}

// ImportResult is the response of POST /data-collection/import-to-database.
type ImportResult struct {
	Status          string  `json:"status"`
	Message         string  `json:"message"`
	ImportedRecords Float   `json:"imported_records"`
	Errors          Strings `json:"errors"`
}

// MRIQuery filters GET /imaging/mri/reports.
type MRIQuery struct {
	PatientID string `url:"patient_id,omitempty"`
	Status    string `url:"status,omitempty"`
}

// MRIReport is one report from GET /imaging/mri/reports.
type MRIReport struct {
	ID           String `json:"id"`
	PatientID    String `json:"patient_id"`
	StudyDate    string `json:"study_date"`
	Status       string `json:"status"`
	Findings     string `json:"findings"`
	Impression   string `json:"impression"`
	TumorSizeCM  Float  `json:"tumor_size_cm"`
	Radiologist  string `json:"radiologist"`
	BodyPart     string `json:"body_part"`
	SequenceType string `json:"sequence_type"`
}

// MonitoringPoint is one timestamped set of metric readings.
type MonitoringPoint struct {
	Timestamp string             `json:"timestamp"`
	Values    map[string]float64 `json:"metrics"`
}

func (p *MonitoringPoint) UnmarshalJSON(b []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("monitoring point: %w", err)
	}
	p.Timestamp = ""
	p.Values = make(map[string]float64)
	for _, k := range []string{"timestamp", "date", "recorded_at", "time"} {
		if raw, ok := obj[k]; ok {
			var s String
			if err := s.UnmarshalJSON(raw); err == nil {
				p.Timestamp = s.String()
			}
			delete(obj, k)
			break
		}
	}
	if nested, ok := obj["metrics"]; ok {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(nested, &m); err == nil {
			delete(obj, "metrics")
			for k, v := range m {
				obj[k] = v
			}
		}
	}
	for k, raw := range obj {
		var f Float
		trimmed := bytes.TrimSpace(raw)
		if isBlank(trimmed) || (trimmed[0] != '"' && (trimmed[0] < '0' || trimmed[0] > '9') && trimmed[0] != '-') {
			continue
		}
		if err := f.UnmarshalJSON(trimmed); err != nil {
			continue
		}
		p.Values[k] = f.Float64()
	}
	return nil
}

// MonitoringAlert is an alert raised on a monitored patient.
type MonitoringAlert struct {
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Metric    string `json:"metric"`
}

// Monitoring is the response of GET /monitoring/patients/{id}/monitoring.
type Monitoring struct {
	PatientID string            `json:"patient_id"`
	Status    string            `json:"status"`
	Timeline  []MonitoringPoint `json:"timeline"`
	Alerts    []MonitoringAlert `json:"alerts"`
}

func (m *Monitoring) UnmarshalJSON(b []byte) error {
	var head struct {
		PatientID String          `json:"patient_id"`
		Status    string          `json:"status"`
		Alerts    json.RawMessage `json:"alerts"`
	}
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &head); err != nil {
			return err
		}
	}
	timeline, err := DecodeList[MonitoringPoint](trimmed, "timeline", "measurements", "vital_signs", "history")
	if err != nil && !errors.Is(err, ErrNoList) {
		return err
	}
	alerts, err := DecodeList[MonitoringAlert](head.Alerts, "alerts")
	if err != nil && !errors.Is(err, ErrNoList) {
		return err
	}
	m.PatientID = head.PatientID.String()
	m.Status = head.Status
	m.Timeline = timeline
	m.Alerts = alerts
	return nil
}

// Metrics returns the metric names seen across the timeline, sorted.
func (m *Monitoring) Metrics() []string {
	seen := make(map[string]struct{})
	for _, p := range m.Timeline {
		for k := range p.Values {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ModelQuery filters GET /ml-models/models.
type ModelQuery struct {
	Type   string `url:"model_type,omitempty"`
	Status string `url:"status,omitempty"`
}

// Model is a trained model from GET /ml-models/models.
type Model struct {
	ID        String `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	ModelType string `json:"model_type"`
	Version   string `json:"version"`
	Status    string `json:"status"`
	Accuracy  Float  `json:"accuracy"`
	Precision Float  `json:"precision"`
	Recall    Float  `json:"recall"`
	F1Score   Float  `json:"f1_score"`
	AUC       Float  `json:"auc"`
	TrainedAt string `json:"trained_at"`
}

// Kind returns the model type, whichever key it arrived under.
func (m Model) Kind() string {
	if m.ModelType != "" {
		return m.ModelType
	}
	return m.Type
}
