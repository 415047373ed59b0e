package hub

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/slatewood/bridgesync/internal/types"
)

// soapServicePath is the hub's RPC endpoint under its base URL.
const soapServicePath = "/Services/v5_0/SoapService.svc"

// hubNS is the XML namespace of the hub's service contract.
const hubNS = "urn:bridgesync:hub:v5_0"

// SOAPTransport is the bundled Transport binding over the hub's SOAP
// service. Sessions ride on cookies, so one transport instance carries one
// session.
type SOAPTransport struct {
	endpoint   string
	HTTPClient *http.Client
}

// NewSOAPTransport creates a transport for the hub at baseURL.
func NewSOAPTransport(baseURL string) *SOAPTransport {
	jar, _ := cookiejar.New(nil)
	return &SOAPTransport{
		endpoint: strings.TrimSuffix(baseURL, "/") + soapServicePath,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
			Jar:     jar,
		},
	}
}

type requestEnvelope struct {
	XMLName xml.Name    `xml:"soap:Envelope"`
	NS      string      `xml:"xmlns:soap,attr"`
	Body    requestBody `xml:"soap:Body"`
}

type requestBody struct {
	Payload interface{}
}

type responseEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Fault *soapFault `xml:"Fault"`
		Inner []byte     `xml:",innerxml"`
	} `xml:"Body"`
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
	Detail struct {
		Validation *xmlValidationFault `xml:"ValidationFault"`
	} `xml:"detail"`
}

type xmlValidationFault struct {
	Summary  string `xml:"Summary"`
	Messages []struct {
		FieldName string `xml:"FieldName"`
		Message   string `xml:"Message"`
	} `xml:"Messages>Message"`
}

// call posts one SOAP action and decodes the response body into out. Faults
// map onto the typed error surface: validation faults become
// *ValidationFault, expired sessions become ErrSessionExpired.
func (t *SOAPTransport) call(ctx context.Context, action string, payload, out interface{}) error {
	data, err := xml.Marshal(requestEnvelope{NS: "http://schemas.xmlsoap.org/soap/envelope/", Body: requestBody{Payload: payload}})
	if err != nil {
		return fmt.Errorf("hub %s: marshal request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(append([]byte(xml.Header), data...)))
	if err != nil {
		return fmt.Errorf("hub %s: create request: %w", action, err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", hubNS+"/"+action)

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("hub %s: %w", action, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("hub %s: read response: %w", action, err)
	}

	var env responseEnvelope
	if err := xml.Unmarshal(respData, &env); err != nil {
		return fmt.Errorf("hub %s: parse envelope (status %d): %w", action, resp.StatusCode, err)
	}
	if env.Body.Fault != nil {
		return faultError(action, env.Body.Fault)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("hub %s: status %d", action, resp.StatusCode)
	}
	if out != nil {
		if err := xml.Unmarshal(env.Body.Inner, out); err != nil {
			return fmt.Errorf("hub %s: parse result: %w", action, err)
		}
	}
	return nil
}

func faultError(action string, f *soapFault) error {
	if f.Detail.Validation != nil {
		vf := &ValidationFault{Summary: f.Detail.Validation.Summary}
		for _, m := range f.Detail.Validation.Messages {
			vf.Messages = append(vf.Messages, FieldMessage{FieldName: m.FieldName, Message: m.Message})
		}
		return vf
	}
	if strings.Contains(strings.ToLower(f.String), "session") {
		return fmt.Errorf("hub %s: %s: %w", action, f.String, ErrSessionExpired)
	}
	return fmt.Errorf("hub %s: fault %s: %s", action, f.Code, f.String)
}

// Session operations.

func (t *SOAPTransport) Authenticate(ctx context.Context, login, password string) error {
	payload := struct {
		XMLName  xml.Name `xml:"urn:bridgesync:hub:v5_0 Connection_Authenticate"`
		Login    string   `xml:"login"`
		Password string   `xml:"password"`
	}{Login: login, Password: password}
	var result struct {
		OK bool `xml:"Connection_AuthenticateResult"`
	}
	if err := t.call(ctx, "Connection_Authenticate", payload, &result); err != nil {
		return err
	}
	if !result.OK {
		return fmt.Errorf("hub rejected credentials for %q", login)
	}
	return nil
}

func (t *SOAPTransport) ConnectProject(ctx context.Context, projectID int) error {
	payload := struct {
		XMLName   xml.Name `xml:"urn:bridgesync:hub:v5_0 Connection_ConnectToProject"`
		ProjectID int      `xml:"projectId"`
	}{ProjectID: projectID}
	var result struct {
		OK bool `xml:"Connection_ConnectToProjectResult"`
	}
	if err := t.call(ctx, "Connection_ConnectToProject", payload, &result); err != nil {
		return err
	}
	if !result.OK {
		return fmt.Errorf("hub refused connection to project %d", projectID)
	}
	return nil
}

func (t *SOAPTransport) Disconnect(ctx context.Context) error {
	payload := struct {
		XMLName xml.Name `xml:"urn:bridgesync:hub:v5_0 Connection_Disconnect"`
	}{}
	return t.call(ctx, "Connection_Disconnect", payload, nil)
}

// Mapping tables.

type xmlMapping struct {
	ProjectID   int    `xml:"ProjectId"`
	InternalID  int    `xml:"InternalId"`
	ExternalKey string `xml:"ExternalKey"`
	Primary     bool   `xml:"Primary"`
}

func (m xmlMapping) toMapping(scope types.Scope) types.Mapping {
	return types.Mapping{
		Scope:        scope,
		HubProjectID: m.ProjectID,
		InternalID:   m.InternalID,
		ExternalKey:  m.ExternalKey,
		Primary:      m.Primary,
	}
}

func toXMLMappings(ms []types.Mapping) []xmlMapping {
	out := make([]xmlMapping, 0, len(ms))
	for _, m := range ms {
		out = append(out, xmlMapping{
			ProjectID:   m.HubProjectID,
			InternalID:  m.InternalID,
			ExternalKey: m.ExternalKey,
			Primary:     m.Primary,
		})
	}
	return out
}

func (t *SOAPTransport) ProjectPairs(ctx context.Context, systemID int) ([]types.ProjectPair, error) {
	payload := struct {
		XMLName  xml.Name `xml:"urn:bridgesync:hub:v5_0 DataMapping_RetrieveProjects"`
		SystemID int      `xml:"dataSyncSystemId"`
	}{SystemID: systemID}
	var result struct {
		Pairs []struct {
			ProjectID   int    `xml:"ProjectId"`
			ExternalKey string `xml:"ExternalKey"`
		} `xml:"DataMapping_RetrieveProjectsResult>ProjectMapping"`
	}
	if err := t.call(ctx, "DataMapping_RetrieveProjects", payload, &result); err != nil {
		return nil, err
	}
	pairs := make([]types.ProjectPair, 0, len(result.Pairs))
	for _, p := range result.Pairs {
		pairs = append(pairs, types.ProjectPair{HubProjectID: p.ProjectID, TrackerProjectKey: p.ExternalKey})
	}
	return pairs, nil
}

func (t *SOAPTransport) Mappings(ctx context.Context, systemID int, scope types.Scope, projectID int) ([]types.Mapping, error) {
	payload := struct {
		XMLName   xml.Name `xml:"urn:bridgesync:hub:v5_0 DataMapping_RetrieveArtifactMappings"`
		SystemID  int      `xml:"dataSyncSystemId"`
		Scope     string   `xml:"scope"`
		ProjectID int      `xml:"projectId"`
	}{SystemID: systemID, Scope: scope.String(), ProjectID: projectID}
	var result struct {
		Mappings []xmlMapping `xml:"DataMapping_RetrieveArtifactMappingsResult>Mapping"`
	}
	if err := t.call(ctx, "DataMapping_RetrieveArtifactMappings", payload, &result); err != nil {
		return nil, err
	}
	out := make([]types.Mapping, 0, len(result.Mappings))
	for _, m := range result.Mappings {
		out = append(out, m.toMapping(scope))
	}
	return out, nil
}

func (t *SOAPTransport) AddMappings(ctx context.Context, systemID int, scope types.Scope, projectID int, mappings []types.Mapping) error {
	payload := struct {
		XMLName   xml.Name     `xml:"urn:bridgesync:hub:v5_0 DataMapping_AddArtifactMappings"`
		SystemID  int          `xml:"dataSyncSystemId"`
		Scope     string       `xml:"scope"`
		ProjectID int          `xml:"projectId"`
		Mappings  []xmlMapping `xml:"mappings>Mapping"`
	}{SystemID: systemID, Scope: scope.String(), ProjectID: projectID, Mappings: toXMLMappings(mappings)}
	return t.call(ctx, "DataMapping_AddArtifactMappings", payload, nil)
}

func (t *SOAPTransport) FieldValueMappings(ctx context.Context, systemID, projectID int, field string) ([]types.Mapping, error) {
	payload := struct {
		XMLName   xml.Name `xml:"urn:bridgesync:hub:v5_0 DataMapping_RetrieveFieldValueMappings"`
		SystemID  int      `xml:"dataSyncSystemId"`
		ProjectID int      `xml:"projectId"`
		Field     string   `xml:"artifactField"`
	}{SystemID: systemID, ProjectID: projectID, Field: field}
	var result struct {
		Mappings []xmlMapping `xml:"DataMapping_RetrieveFieldValueMappingsResult>Mapping"`
	}
	if err := t.call(ctx, "DataMapping_RetrieveFieldValueMappings", payload, &result); err != nil {
		return nil, err
	}
	out := make([]types.Mapping, 0, len(result.Mappings))
	for _, m := range result.Mappings {
		out = append(out, m.toMapping(types.ScopeCustomPropertyValue))
	}
	return out, nil
}

func (t *SOAPTransport) CustomPropertyMappings(ctx context.Context, systemID, projectID int, artifact types.ArtifactType) ([]types.Mapping, error) {
	payload := struct {
		XMLName   xml.Name `xml:"urn:bridgesync:hub:v5_0 DataMapping_RetrieveCustomPropertyMappings"`
		SystemID  int      `xml:"dataSyncSystemId"`
		ProjectID int      `xml:"projectId"`
		Artifact  string   `xml:"artifactType"`
	}{SystemID: systemID, ProjectID: projectID, Artifact: artifact.String()}
	var result struct {
		Mappings []xmlMapping `xml:"DataMapping_RetrieveCustomPropertyMappingsResult>Mapping"`
	}
	if err := t.call(ctx, "DataMapping_RetrieveCustomPropertyMappings", payload, &result); err != nil {
		return nil, err
	}
	out := make([]types.Mapping, 0, len(result.Mappings))
	for _, m := range result.Mappings {
		out = append(out, m.toMapping(types.ScopeCustomProperty))
	}
	return out, nil
}

func (t *SOAPTransport) CustomPropertyValueMappings(ctx context.Context, systemID, projectID, propertyNumber int) ([]types.Mapping, error) {
	payload := struct {
		XMLName        xml.Name `xml:"urn:bridgesync:hub:v5_0 DataMapping_RetrieveCustomPropertyValueMappings"`
		SystemID       int      `xml:"dataSyncSystemId"`
		ProjectID      int      `xml:"projectId"`
		PropertyNumber int      `xml:"propertyNumber"`
	}{SystemID: systemID, ProjectID: projectID, PropertyNumber: propertyNumber}
	var result struct {
		Mappings []xmlMapping `xml:"DataMapping_RetrieveCustomPropertyValueMappingsResult>Mapping"`
	}
	if err := t.call(ctx, "DataMapping_RetrieveCustomPropertyValueMappings", payload, &result); err != nil {
		return nil, err
	}
	out := make([]types.Mapping, 0, len(result.Mappings))
	for _, m := range result.Mappings {
		out = append(out, m.toMapping(types.ScopeCustomPropertyValue))
	}
	return out, nil
}

// Custom-property schema.

type xmlPropertyDefinition struct {
	PropertyNumber int    `xml:"PropertyNumber"`
	Name           string `xml:"Name"`
	Kind           string `xml:"Kind"`
	Options        []struct {
		ID   int    `xml:"Id"`
		Name string `xml:"Name"`
	} `xml:"Options>Option"`
}

var propertyKinds = map[string]types.PropertyKind{
	"text":      types.PropertyText,
	"integer":   types.PropertyInteger,
	"decimal":   types.PropertyDecimal,
	"boolean":   types.PropertyBoolean,
	"date":      types.PropertyDate,
	"list":      types.PropertyList,
	"multilist": types.PropertyMultiList,
	"user":      types.PropertyUser,
}

func (t *SOAPTransport) CustomProperties(ctx context.Context, projectID int, artifact types.ArtifactType) ([]types.CustomPropertyDefinition, error) {
	payload := struct {
		XMLName   xml.Name `xml:"urn:bridgesync:hub:v5_0 CustomProperty_RetrieveForArtifactType"`
		ProjectID int      `xml:"projectId"`
		Artifact  string   `xml:"artifactType"`
	}{ProjectID: projectID, Artifact: artifact.String()}
	var result struct {
		Definitions []xmlPropertyDefinition `xml:"CustomProperty_RetrieveForArtifactTypeResult>CustomProperty"`
	}
	if err := t.call(ctx, "CustomProperty_RetrieveForArtifactType", payload, &result); err != nil {
		return nil, err
	}
	out := make([]types.CustomPropertyDefinition, 0, len(result.Definitions))
	for _, d := range result.Definitions {
		def := types.CustomPropertyDefinition{
			PropertyNumber: d.PropertyNumber,
			Name:           d.Name,
			Kind:           propertyKinds[strings.ToLower(d.Kind)],
		}
		for _, o := range d.Options {
			def.ListOptions = append(def.ListOptions, types.ListOption{ID: o.ID, Name: o.Name})
		}
		out = append(out, def)
	}
	return out, nil
}

// Typed custom-property values on the wire: a kind discriminator plus one or
// more string-encoded values.

type xmlPropertyValue struct {
	PropertyNumber int      `xml:"PropertyNumber"`
	Kind           string   `xml:"Kind"`
	Values         []string `xml:"Values>Value"`
}

func encodePropertyValues(props map[int]types.TypedValue) []xmlPropertyValue {
	out := make([]xmlPropertyValue, 0, len(props))
	for slot, v := range props {
		pv := xmlPropertyValue{PropertyNumber: slot}
		switch v.Kind() {
		case types.KindText:
			s, _ := v.TextValue()
			pv.Kind, pv.Values = "text", []string{s}
		case types.KindInteger:
			n, _ := v.IntValue()
			pv.Kind, pv.Values = "integer", []string{strconv.Itoa(n)}
		case types.KindDecimal:
			d, _ := v.DecimalValue()
			pv.Kind, pv.Values = "decimal", []string{d.String()}
		case types.KindBoolean:
			b, _ := v.BoolValue()
			pv.Kind, pv.Values = "boolean", []string{strconv.FormatBool(b)}
		case types.KindDate:
			d, _ := v.DateValue()
			pv.Kind, pv.Values = "date", []string{d.UTC().Format(time.RFC3339)}
		case types.KindList:
			s, _ := v.ListValue()
			pv.Kind, pv.Values = "list", []string{s}
		case types.KindMultiList:
			ms, _ := v.MultiListValue()
			pv.Kind, pv.Values = "multilist", ms
		case types.KindUser:
			s, _ := v.UserValue()
			pv.Kind, pv.Values = "user", []string{s}
		default:
			continue
		}
		out = append(out, pv)
	}
	return out
}

func decodePropertyValues(pvs []xmlPropertyValue) map[int]types.TypedValue {
	if len(pvs) == 0 {
		return nil
	}
	out := make(map[int]types.TypedValue, len(pvs))
	for _, pv := range pvs {
		first := ""
		if len(pv.Values) > 0 {
			first = pv.Values[0]
		}
		switch pv.Kind {
		case "text":
			out[pv.PropertyNumber] = types.Text(first)
		case "integer":
			if n, err := strconv.Atoi(first); err == nil {
				out[pv.PropertyNumber] = types.Integer(n)
			}
		case "decimal":
			if d, err := decimal.NewFromString(first); err == nil {
				out[pv.PropertyNumber] = types.Decimal(d)
			}
		case "boolean":
			if b, err := strconv.ParseBool(first); err == nil {
				out[pv.PropertyNumber] = types.Boolean(b)
			}
		case "date":
			if d, err := time.Parse(time.RFC3339, first); err == nil {
				out[pv.PropertyNumber] = types.Date(d)
			}
		case "list":
			out[pv.PropertyNumber] = types.List(first)
		case "multilist":
			out[pv.PropertyNumber] = types.MultiList(pv.Values)
		case "user":
			out[pv.PropertyNumber] = types.User(first)
		}
	}
	return out
}

// Incidents.

type xmlIncident struct {
	ID                int                `xml:"IncidentId"`
	ProjectID         int                `xml:"ProjectId"`
	Name              string             `xml:"Name"`
	Description       string             `xml:"Description"`
	StatusID          int                `xml:"IncidentStatusId"`
	TypeID            int                `xml:"IncidentTypeId"`
	PriorityID        *int               `xml:"PriorityId,omitempty"`
	SeverityID        *int               `xml:"SeverityId,omitempty"`
	OpenerID          int                `xml:"OpenerId"`
	OwnerID           *int               `xml:"OwnerId,omitempty"`
	CreationDate      string             `xml:"CreationDate"`
	StartDate         string             `xml:"StartDate,omitempty"`
	ClosedDate        string             `xml:"ClosedDate,omitempty"`
	LastUpdateDate    string             `xml:"LastUpdateDate"`
	DetectedReleaseID *int               `xml:"DetectedReleaseId,omitempty"`
	ResolvedReleaseID *int               `xml:"ResolvedReleaseId,omitempty"`
	ComponentIDs      []int              `xml:"ComponentIds>Id"`
	Properties        []xmlPropertyValue `xml:"CustomProperties>CustomProperty"`
}

func toXMLIncident(inc *types.Incident) xmlIncident {
	return xmlIncident{
		ID:                inc.ID,
		ProjectID:         inc.ProjectID,
		Name:              inc.Name,
		Description:       inc.Description,
		StatusID:          inc.StatusID,
		TypeID:            inc.TypeID,
		PriorityID:        inc.PriorityID,
		SeverityID:        inc.SeverityID,
		OpenerID:          inc.OpenerID,
		OwnerID:           inc.OwnerID,
		CreationDate:      formatTime(inc.CreationDate),
		StartDate:         formatTimePtr(inc.StartDate),
		ClosedDate:        formatTimePtr(inc.ClosedDate),
		LastUpdateDate:    formatTime(inc.LastUpdateDate),
		DetectedReleaseID: inc.DetectedReleaseID,
		ResolvedReleaseID: inc.ResolvedReleaseID,
		ComponentIDs:      inc.ComponentIDs,
		Properties:        encodePropertyValues(inc.CustomProperties),
	}
}

func (x xmlIncident) toIncident() types.Incident {
	return types.Incident{
		ID:                x.ID,
		ProjectID:         x.ProjectID,
		Name:              x.Name,
		Description:       x.Description,
		StatusID:          x.StatusID,
		TypeID:            x.TypeID,
		PriorityID:        x.PriorityID,
		SeverityID:        x.SeverityID,
		OpenerID:          x.OpenerID,
		OwnerID:           x.OwnerID,
		CreationDate:      parseTime(x.CreationDate),
		StartDate:         parseTimePtr(x.StartDate),
		ClosedDate:        parseTimePtr(x.ClosedDate),
		LastUpdateDate:    parseTime(x.LastUpdateDate),
		DetectedReleaseID: x.DetectedReleaseID,
		ResolvedReleaseID: x.ResolvedReleaseID,
		ComponentIDs:      x.ComponentIDs,
		CustomProperties:  decodePropertyValues(x.Properties),
	}
}

func (t *SOAPTransport) Incidents(ctx context.Context, projectID, start, count int, since *time.Time) ([]types.Incident, error) {
	payload := struct {
		XMLName   xml.Name `xml:"urn:bridgesync:hub:v5_0 Incident_Retrieve"`
		ProjectID int      `xml:"projectId"`
		Start     int      `xml:"startRow"`
		Count     int      `xml:"numberOfRows"`
		Since     string   `xml:"updatedSince,omitempty"`
	}{ProjectID: projectID, Start: start, Count: count, Since: formatTimePtr(since)}
	var result struct {
		Incidents []xmlIncident `xml:"Incident_RetrieveResult>Incident"`
	}
	if err := t.call(ctx, "Incident_Retrieve", payload, &result); err != nil {
		return nil, err
	}
	out := make([]types.Incident, 0, len(result.Incidents))
	for _, x := range result.Incidents {
		out = append(out, x.toIncident())
	}
	return out, nil
}

func (t *SOAPTransport) CreateIncident(ctx context.Context, inc *types.Incident) (*types.Incident, error) {
	payload := struct {
		XMLName  xml.Name    `xml:"urn:bridgesync:hub:v5_0 Incident_Create"`
		Incident xmlIncident `xml:"incident"`
	}{Incident: toXMLIncident(inc)}
	var result struct {
		Incident xmlIncident `xml:"Incident_CreateResult"`
	}
	if err := t.call(ctx, "Incident_Create", payload, &result); err != nil {
		return nil, err
	}
	created := result.Incident.toIncident()
	return &created, nil
}

func (t *SOAPTransport) UpdateIncident(ctx context.Context, inc *types.Incident) error {
	payload := struct {
		XMLName  xml.Name    `xml:"urn:bridgesync:hub:v5_0 Incident_Update"`
		Incident xmlIncident `xml:"incident"`
	}{Incident: toXMLIncident(inc)}
	return t.call(ctx, "Incident_Update", payload, nil)
}

func (t *SOAPTransport) IncidentByID(ctx context.Context, projectID, id int) (*types.Incident, error) {
	payload := struct {
		XMLName    xml.Name `xml:"urn:bridgesync:hub:v5_0 Incident_RetrieveById"`
		ProjectID  int      `xml:"projectId"`
		IncidentID int      `xml:"incidentId"`
	}{ProjectID: projectID, IncidentID: id}
	var result struct {
		Incident *xmlIncident `xml:"Incident_RetrieveByIdResult"`
	}
	if err := t.call(ctx, "Incident_RetrieveById", payload, &result); err != nil {
		return nil, err
	}
	if result.Incident == nil || result.Incident.ID == 0 {
		return nil, nil
	}
	inc := result.Incident.toIncident()
	return &inc, nil
}

// Requirements.

type xmlRequirement struct {
	ID           int                `xml:"RequirementId"`
	ProjectID    int                `xml:"ProjectId"`
	Name         string             `xml:"Name"`
	Description  string             `xml:"Description"`
	StatusID     int                `xml:"StatusId"`
	TypeID       int                `xml:"RequirementTypeId"`
	ImportanceID *int               `xml:"ImportanceId,omitempty"`
	AuthorID     int                `xml:"AuthorId"`
	OwnerID      *int               `xml:"OwnerId,omitempty"`
	CreationDate string             `xml:"CreationDate"`
	ReleaseID    *int               `xml:"ReleaseId,omitempty"`
	ComponentID  *int               `xml:"ComponentId,omitempty"`
	Properties   []xmlPropertyValue `xml:"CustomProperties>CustomProperty"`
}

func toXMLRequirement(req *types.Requirement) xmlRequirement {
	return xmlRequirement{
		ID:           req.ID,
		ProjectID:    req.ProjectID,
		Name:         req.Name,
		Description:  req.Description,
		StatusID:     req.StatusID,
		TypeID:       req.TypeID,
		ImportanceID: req.ImportanceID,
		AuthorID:     req.AuthorID,
		OwnerID:      req.OwnerID,
		CreationDate: formatTime(req.CreationDate),
		ReleaseID:    req.ReleaseID,
		ComponentID:  req.ComponentID,
		Properties:   encodePropertyValues(req.CustomProperties),
	}
}

func (x xmlRequirement) toRequirement() types.Requirement {
	return types.Requirement{
		ID:               x.ID,
		ProjectID:        x.ProjectID,
		Name:             x.Name,
		Description:      x.Description,
		StatusID:         x.StatusID,
		TypeID:           x.TypeID,
		ImportanceID:     x.ImportanceID,
		AuthorID:         x.AuthorID,
		OwnerID:          x.OwnerID,
		CreationDate:     parseTime(x.CreationDate),
		ReleaseID:        x.ReleaseID,
		ComponentID:      x.ComponentID,
		CustomProperties: decodePropertyValues(x.Properties),
	}
}

func (t *SOAPTransport) CreateRequirement(ctx context.Context, req *types.Requirement) (*types.Requirement, error) {
	payload := struct {
		XMLName     xml.Name       `xml:"urn:bridgesync:hub:v5_0 Requirement_Create"`
		Requirement xmlRequirement `xml:"requirement"`
	}{Requirement: toXMLRequirement(req)}
	var result struct {
		Requirement xmlRequirement `xml:"Requirement_CreateResult"`
	}
	if err := t.call(ctx, "Requirement_Create", payload, &result); err != nil {
		return nil, err
	}
	created := result.Requirement.toRequirement()
	return &created, nil
}

func (t *SOAPTransport) UpdateRequirement(ctx context.Context, req *types.Requirement) error {
	payload := struct {
		XMLName     xml.Name       `xml:"urn:bridgesync:hub:v5_0 Requirement_Update"`
		Requirement xmlRequirement `xml:"requirement"`
	}{Requirement: toXMLRequirement(req)}
	return t.call(ctx, "Requirement_Update", payload, nil)
}

func (t *SOAPTransport) RequirementByID(ctx context.Context, projectID, id int) (*types.Requirement, error) {
	payload := struct {
		XMLName       xml.Name `xml:"urn:bridgesync:hub:v5_0 Requirement_RetrieveById"`
		ProjectID     int      `xml:"projectId"`
		RequirementID int      `xml:"requirementId"`
	}{ProjectID: projectID, RequirementID: id}
	var result struct {
		Requirement *xmlRequirement `xml:"Requirement_RetrieveByIdResult"`
	}
	if err := t.call(ctx, "Requirement_RetrieveById", payload, &result); err != nil {
		return nil, err
	}
	if result.Requirement == nil || result.Requirement.ID == 0 {
		return nil, nil
	}
	req := result.Requirement.toRequirement()
	return &req, nil
}

// Comments.

type xmlComment struct {
	ArtifactID   int    `xml:"ArtifactId"`
	AuthorID     int    `xml:"AuthorId"`
	Text         string `xml:"Text"`
	CreationDate string `xml:"CreationDate"`
}

func (t *SOAPTransport) Comments(ctx context.Context, artifact types.ArtifactType, artifactID int) ([]types.CommentRecord, error) {
	payload := struct {
		XMLName    xml.Name `xml:"urn:bridgesync:hub:v5_0 Comment_Retrieve"`
		Artifact   string   `xml:"artifactType"`
		ArtifactID int      `xml:"artifactId"`
	}{Artifact: artifact.String(), ArtifactID: artifactID}
	var result struct {
		Comments []xmlComment `xml:"Comment_RetrieveResult>Comment"`
	}
	if err := t.call(ctx, "Comment_Retrieve", payload, &result); err != nil {
		return nil, err
	}
	out := make([]types.CommentRecord, 0, len(result.Comments))
	for _, c := range result.Comments {
		out = append(out, types.CommentRecord{
			ArtifactID:   c.ArtifactID,
			AuthorID:     c.AuthorID,
			Text:         c.Text,
			CreationDate: parseTime(c.CreationDate),
		})
	}
	return out, nil
}

func (t *SOAPTransport) AddComments(ctx context.Context, artifact types.ArtifactType, comments []types.CommentRecord) error {
	xs := make([]xmlComment, 0, len(comments))
	for _, c := range comments {
		xs = append(xs, xmlComment{
			ArtifactID:   c.ArtifactID,
			AuthorID:     c.AuthorID,
			Text:         c.Text,
			CreationDate: formatTime(c.CreationDate),
		})
	}
	payload := struct {
		XMLName  xml.Name     `xml:"urn:bridgesync:hub:v5_0 Comment_Add"`
		Artifact string       `xml:"artifactType"`
		Comments []xmlComment `xml:"comments>Comment"`
	}{Artifact: artifact.String(), Comments: xs}
	return t.call(ctx, "Comment_Add", payload, nil)
}

// Documents.

func (t *SOAPTransport) Documents(ctx context.Context, artifact types.ArtifactType, artifactID int) ([]types.Document, error) {
	payload := struct {
		XMLName    xml.Name `xml:"urn:bridgesync:hub:v5_0 Document_RetrieveForArtifact"`
		Artifact   string   `xml:"artifactType"`
		ArtifactID int      `xml:"artifactId"`
	}{Artifact: artifact.String(), ArtifactID: artifactID}
	var result struct {
		Documents []struct {
			ArtifactID    int    `xml:"ArtifactId"`
			FilenameOrURL string `xml:"FilenameOrUrl"`
			Data          []byte `xml:"Data"`
			AuthorID      int    `xml:"AuthorId"`
			Description   string `xml:"Description"`
		} `xml:"Document_RetrieveForArtifactResult>Document"`
	}
	if err := t.call(ctx, "Document_RetrieveForArtifact", payload, &result); err != nil {
		return nil, err
	}
	out := make([]types.Document, 0, len(result.Documents))
	for _, d := range result.Documents {
		out = append(out, types.Document{
			ArtifactID:    d.ArtifactID,
			ArtifactType:  artifact,
			FilenameOrURL: d.FilenameOrURL,
			Data:          d.Data,
			AuthorID:      d.AuthorID,
			Description:   d.Description,
		})
	}
	return out, nil
}

func (t *SOAPTransport) AttachDocument(ctx context.Context, doc *types.Document) error {
	payload := struct {
		XMLName       xml.Name `xml:"urn:bridgesync:hub:v5_0 Document_Add"`
		Artifact      string   `xml:"artifactType"`
		ArtifactID    int      `xml:"artifactId"`
		FilenameOrURL string   `xml:"filenameOrUrl"`
		Data          []byte   `xml:"data,omitempty"`
		AuthorID      int      `xml:"authorId"`
		Description   string   `xml:"description,omitempty"`
	}{
		Artifact:      doc.ArtifactType.String(),
		ArtifactID:    doc.ArtifactID,
		FilenameOrURL: doc.FilenameOrURL,
		Data:          doc.Data,
		AuthorID:      doc.AuthorID,
		Description:   doc.Description,
	}
	return t.call(ctx, "Document_Add", payload, nil)
}

// Releases.

type xmlRelease struct {
	ID              int    `xml:"ReleaseId"`
	ProjectID       int    `xml:"ProjectId"`
	Name            string `xml:"Name"`
	VersionNumber   string `xml:"VersionNumber"`
	Active          bool   `xml:"Active"`
	StartDate       string `xml:"StartDate"`
	EndDate         string `xml:"EndDate"`
	ReleaseStatusID int    `xml:"ReleaseStatusId"`
	ReleaseTypeID   int    `xml:"ReleaseTypeId"`
}

func (x xmlRelease) toRelease() types.Release {
	return types.Release{
		ID:              x.ID,
		ProjectID:       x.ProjectID,
		Name:            x.Name,
		VersionNumber:   x.VersionNumber,
		Active:          x.Active,
		StartDate:       parseTime(x.StartDate),
		EndDate:         parseTime(x.EndDate),
		ReleaseStatusID: x.ReleaseStatusID,
		ReleaseTypeID:   x.ReleaseTypeID,
	}
}

func (t *SOAPTransport) Releases(ctx context.Context, projectID int) ([]types.Release, error) {
	payload := struct {
		XMLName   xml.Name `xml:"urn:bridgesync:hub:v5_0 Release_Retrieve"`
		ProjectID int      `xml:"projectId"`
	}{ProjectID: projectID}
	var result struct {
		Releases []xmlRelease `xml:"Release_RetrieveResult>Release"`
	}
	if err := t.call(ctx, "Release_Retrieve", payload, &result); err != nil {
		return nil, err
	}
	out := make([]types.Release, 0, len(result.Releases))
	for _, x := range result.Releases {
		out = append(out, x.toRelease())
	}
	return out, nil
}

func (t *SOAPTransport) CreateRelease(ctx context.Context, rel *types.Release) (*types.Release, error) {
	payload := struct {
		XMLName xml.Name   `xml:"urn:bridgesync:hub:v5_0 Release_Create"`
		Release xmlRelease `xml:"release"`
	}{Release: xmlRelease{
		ProjectID:       rel.ProjectID,
		Name:            rel.Name,
		VersionNumber:   rel.VersionNumber,
		Active:          rel.Active,
		StartDate:       formatTime(rel.StartDate),
		EndDate:         formatTime(rel.EndDate),
		ReleaseStatusID: rel.ReleaseStatusID,
		ReleaseTypeID:   rel.ReleaseTypeID,
	}}
	var result struct {
		Release xmlRelease `xml:"Release_CreateResult"`
	}
	if err := t.call(ctx, "Release_Create", payload, &result); err != nil {
		return nil, err
	}
	created := result.Release.toRelease()
	return &created, nil
}

// Associations and test runs.

func (t *SOAPTransport) IncidentAssociations(ctx context.Context, projectID, incidentID int) ([]types.Association, error) {
	payload := struct {
		XMLName    xml.Name `xml:"urn:bridgesync:hub:v5_0 Association_RetrieveForIncident"`
		ProjectID  int      `xml:"projectId"`
		IncidentID int      `xml:"incidentId"`
	}{ProjectID: projectID, IncidentID: incidentID}
	var result struct {
		Associations []struct {
			SourceArtifactID int    `xml:"SourceArtifactId"`
			DestArtifactID   int    `xml:"DestArtifactId"`
			DestArtifactType string `xml:"DestArtifactType"`
			Comment          string `xml:"Comment"`
		} `xml:"Association_RetrieveForIncidentResult>Association"`
	}
	if err := t.call(ctx, "Association_RetrieveForIncident", payload, &result); err != nil {
		return nil, err
	}
	out := make([]types.Association, 0, len(result.Associations))
	for _, a := range result.Associations {
		out = append(out, types.Association{
			SourceArtifactID: a.SourceArtifactID,
			DestArtifactID:   a.DestArtifactID,
			DestArtifactType: artifactTypeFromString(a.DestArtifactType),
			Comment:          a.Comment,
		})
	}
	return out, nil
}

func (t *SOAPTransport) TestRunsForIncident(ctx context.Context, projectID, incidentID int) ([]types.TestRunRef, error) {
	payload := struct {
		XMLName    xml.Name `xml:"urn:bridgesync:hub:v5_0 TestRun_RetrieveForIncident"`
		ProjectID  int      `xml:"projectId"`
		IncidentID int      `xml:"incidentId"`
	}{ProjectID: projectID, IncidentID: incidentID}
	var result struct {
		Runs []struct {
			TestRunID int    `xml:"TestRunId"`
			Name      string `xml:"Name"`
		} `xml:"TestRun_RetrieveForIncidentResult>TestRun"`
	}
	if err := t.call(ctx, "TestRun_RetrieveForIncident", payload, &result); err != nil {
		return nil, err
	}
	out := make([]types.TestRunRef, 0, len(result.Runs))
	for _, r := range result.Runs {
		out = append(out, types.TestRunRef{TestRunID: r.TestRunID, Name: r.Name})
	}
	return out, nil
}

// Users.

type xmlUser struct {
	ID    int    `xml:"UserId"`
	Login string `xml:"Login"`
	Name  string `xml:"Name"`
	Email string `xml:"Email"`
}

func (t *SOAPTransport) UserByID(ctx context.Context, id int) (*types.HubUser, error) {
	payload := struct {
		XMLName xml.Name `xml:"urn:bridgesync:hub:v5_0 User_RetrieveById"`
		UserID  int      `xml:"userId"`
	}{UserID: id}
	var result struct {
		User *xmlUser `xml:"User_RetrieveByIdResult"`
	}
	if err := t.call(ctx, "User_RetrieveById", payload, &result); err != nil {
		return nil, err
	}
	if result.User == nil || result.User.ID == 0 {
		return nil, nil
	}
	return &types.HubUser{ID: result.User.ID, Login: result.User.Login, Name: result.User.Name, Email: result.User.Email}, nil
}

func (t *SOAPTransport) UserByLogin(ctx context.Context, login string) (*types.HubUser, error) {
	payload := struct {
		XMLName xml.Name `xml:"urn:bridgesync:hub:v5_0 User_RetrieveByLogin"`
		Login   string   `xml:"login"`
	}{Login: login}
	var result struct {
		User *xmlUser `xml:"User_RetrieveByLoginResult"`
	}
	if err := t.call(ctx, "User_RetrieveByLogin", payload, &result); err != nil {
		return nil, err
	}
	if result.User == nil || result.User.ID == 0 {
		return nil, nil
	}
	return &types.HubUser{ID: result.User.ID, Login: result.User.Login, Name: result.User.Name, Email: result.User.Email}, nil
}

func (t *SOAPTransport) ArtifactURL(ctx context.Context, artifact types.ArtifactType, projectID, artifactID int) (string, error) {
	payload := struct {
		XMLName    xml.Name `xml:"urn:bridgesync:hub:v5_0 System_GetArtifactUrl"`
		Artifact   string   `xml:"artifactType"`
		ProjectID  int      `xml:"projectId"`
		ArtifactID int      `xml:"artifactId"`
	}{Artifact: artifact.String(), ProjectID: projectID, ArtifactID: artifactID}
	var result struct {
		URL string `xml:"System_GetArtifactUrlResult"`
	}
	if err := t.call(ctx, "System_GetArtifactUrl", payload, &result); err != nil {
		return "", err
	}
	return result.URL, nil
}

func artifactTypeFromString(s string) types.ArtifactType {
	switch strings.ToLower(s) {
	case "requirement":
		return types.ArtifactRequirement
	case "release":
		return types.ArtifactRelease
	case "testrun":
		return types.ArtifactTestRun
	default:
		return types.ArtifactIncident
	}
}

// Wire time format: ISO-8601 in UTC.

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func parseTimePtr(s string) *time.Time {
	if s == "" {
		return nil
	}
	t := parseTime(s)
	if t.IsZero() {
		return nil
	}
	return &t
}
