// Package bridgesync exposes the host-facing plugin surface of the sync
// engine: Setup with the host's connection settings and custom options,
// Execute for one reconciliation cycle, Dispose to release the clients.
//
// The hub's RPC binding is injectable; hosts embedding their own stubs set
// SetupParams.HubTransport, everyone else gets the bundled SOAP binding.
package bridgesync

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/slatewood/bridgesync/internal/engine"
	"github.com/slatewood/bridgesync/internal/eventlog"
	"github.com/slatewood/bridgesync/internal/hub"
	"github.com/slatewood/bridgesync/internal/jira"
	"github.com/slatewood/bridgesync/internal/telemetry"
)

// SyncStatus is the host-visible outcome of one Execute call.
type SyncStatus int

const (
	StatusSuccess SyncStatus = iota
	StatusError
)

func (s SyncStatus) String() string {
	if s == StatusSuccess {
		return "Success"
	}
	return "Error"
}

// SetupParams carries everything the host hands the plugin at setup time.
//
// The five Custom slots follow the hub's data-sync option convention:
//
//	Custom01  decimal tracker custom-field id mirrored into hub severity
//	Custom02  "true" enables tracker security-level propagation
//	Custom03  "true" restricts new artifacts to the hub-to-tracker flow
//	Custom04  comma-separated tracker issue-type ids routed to requirements
//	Custom05  tracker issue-link type for incident-incident associations
type SetupParams struct {
	EventLogSink eventlog.Sink
	TraceLogging bool

	DataSyncSystemID int

	HubBaseURL  string
	HubLogin    string
	HubPassword string
	// HubWebBaseURL substitutes the "~" placeholder in artifact URL
	// templates. Defaults to HubBaseURL.
	HubWebBaseURL string
	// HubTransport overrides the bundled SOAP binding.
	HubTransport hub.Transport

	TrackerBaseURL  string
	TrackerLogin    string
	TrackerPassword string
	// TrackerUseDefaultCredentials enables integrated single-sign-on.
	TrackerUseDefaultCredentials bool
	// AcceptAllCertificates relaxes tracker TLS verification for this
	// plugin instance. Opt-in; only for deployments with private CAs.
	AcceptAllCertificates bool

	OffsetHours  int
	AutoMapUsers bool

	// TrackerTimezone, when set to an IANA name, overrides OffsetHours for
	// the pull query window.
	TrackerTimezone string

	// PushUpdatedOnly narrows the push scan to incidents updated since the
	// last sync.
	PushUpdatedOnly bool

	// PersistAutoCreatedReleaseMappings writes auto-provisioned release
	// pairs back to the hub's mapping table.
	PersistAutoCreatedReleaseMappings bool

	// DefaultHubUserID is the fallback author for unmapped tracker logins.
	DefaultHubUserID int

	// SyncFlagProperty and ProjectKeyProperty name the hub custom
	// properties gating push and overriding the target project.
	SyncFlagProperty   string
	ProjectKeyProperty string

	Custom01 string
	Custom02 string
	Custom03 string
	Custom04 string
	Custom05 string
}

// Plugin is one configured engine instance. Not safe for concurrent Execute
// calls; the host serializes cycles.
type Plugin struct {
	log    *eventlog.Logger
	engine *engine.Engine
	ready  bool
}

// Setup wires the clients and the engine from the host's parameters.
func (p *Plugin) Setup(params SetupParams) error {
	sink := params.EventLogSink
	if sink == nil {
		return errors.New("bridgesync: event log sink is required")
	}
	p.log = eventlog.New(sink, params.TraceLogging)

	if params.HubBaseURL == "" && params.HubTransport == nil {
		return errors.New("bridgesync: hub base URL is required")
	}
	if params.TrackerBaseURL == "" {
		return errors.New("bridgesync: tracker base URL is required")
	}

	opts, err := optionsFromParams(params)
	if err != nil {
		p.log.Errorf("setup: %v", err)
		return err
	}

	transport := params.HubTransport
	if transport == nil {
		transport = hub.NewSOAPTransport(params.HubBaseURL)
	}
	webBase := params.HubWebBaseURL
	if webBase == "" {
		webBase = params.HubBaseURL
	}
	hubClient := hub.NewClient(transport, params.HubLogin, params.HubPassword, params.DataSyncSystemID, webBase)

	tracker := jira.NewClient(params.TrackerBaseURL, params.TrackerLogin, params.TrackerPassword)
	tracker.UseDefaultCredentials = params.TrackerUseDefaultCredentials
	tracker.InsecureSkipVerify = params.AcceptAllCertificates

	metrics, err := telemetry.NewSyncMetrics()
	if err != nil {
		p.log.Warnf("setup: metrics unavailable: %v", err)
		metrics = nil
	}

	p.engine = engine.New(hubClient, tracker, p.log, metrics, opts)
	p.ready = true
	return nil
}

// Execute runs one reconciliation cycle. lastSyncAt nil means full horizon.
func (p *Plugin) Execute(ctx context.Context, lastSyncAt *time.Time, now time.Time) SyncStatus {
	if !p.ready {
		if p.log != nil {
			p.log.Errorf("execute called before setup")
		}
		return StatusError
	}
	if err := p.engine.Execute(ctx, lastSyncAt, now); err != nil {
		return StatusError
	}
	return StatusSuccess
}

// Dispose releases the plugin. Safe to call more than once.
func (p *Plugin) Dispose() {
	p.engine = nil
	p.ready = false
}

// optionsFromParams folds the host parameters and the five custom option
// slots into engine options.
func optionsFromParams(params SetupParams) (engine.Options, error) {
	opts := engine.Options{
		AutoMapUsers:                      params.AutoMapUsers,
		LocalTimezoneOffsetHours:          params.OffsetHours,
		TrackerTimezone:                   params.TrackerTimezone,
		PushUpdatedOnly:                   params.PushUpdatedOnly,
		PersistAutoCreatedReleaseMappings: params.PersistAutoCreatedReleaseMappings,
		DefaultHubUserID:                  params.DefaultHubUserID,
		SyncFlagProperty:                  params.SyncFlagProperty,
		ProjectKeyProperty:                params.ProjectKeyProperty,
	}

	if s := strings.TrimSpace(params.Custom01); s != "" {
		id, err := strconv.Atoi(strings.TrimPrefix(s, jira.CustomFieldPrefix))
		if err != nil {
			return opts, errors.New("bridgesync: custom01 must be a numeric custom-field id")
		}
		opts.SeverityCustomFieldID = id
	}
	opts.UseSecurityLevel = strings.EqualFold(strings.TrimSpace(params.Custom02), "true")
	opts.OnlyCreateNewItemsInTracker = strings.EqualFold(strings.TrimSpace(params.Custom03), "true")
	for _, id := range strings.Split(params.Custom04, ",") {
		if id = strings.TrimSpace(id); id != "" {
			opts.RequirementIssueTypes = append(opts.RequirementIssueTypes, id)
		}
	}
	opts.IncidentLinkType = strings.TrimSpace(params.Custom05)
	return opts, nil
}
