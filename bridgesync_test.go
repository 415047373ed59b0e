package bridgesync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slatewood/bridgesync/internal/eventlog"
)

func discardSink() eventlog.Sink {
	return eventlog.SinkFunc(func(eventlog.Severity, string) {})
}

func TestOptionsFromParamsCustomSlots(t *testing.T) {
	opts, err := optionsFromParams(SetupParams{
		Custom01: "customfield_10900",
		Custom02: "TRUE",
		Custom03: "false",
		Custom04: "7, 9,10100",
		Custom05: " relates to ",
	})
	require.NoError(t, err)

	assert.Equal(t, 10900, opts.SeverityCustomFieldID)
	assert.True(t, opts.UseSecurityLevel)
	assert.False(t, opts.OnlyCreateNewItemsInTracker)
	assert.Equal(t, []string{"7", "9", "10100"}, opts.RequirementIssueTypes)
	assert.Equal(t, "relates to", opts.IncidentLinkType)
}

func TestOptionsFromParamsBareNumericFieldID(t *testing.T) {
	opts, err := optionsFromParams(SetupParams{Custom01: "10900"})
	require.NoError(t, err)
	assert.Equal(t, 10900, opts.SeverityCustomFieldID)
}

func TestOptionsFromParamsRejectsBadFieldID(t *testing.T) {
	_, err := optionsFromParams(SetupParams{Custom01: "severity"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "custom01")
}

func TestOptionsFromParamsEmptySlotsAreDefaults(t *testing.T) {
	opts, err := optionsFromParams(SetupParams{})
	require.NoError(t, err)
	assert.Zero(t, opts.SeverityCustomFieldID)
	assert.False(t, opts.UseSecurityLevel)
	assert.Empty(t, opts.RequirementIssueTypes)
	assert.Empty(t, opts.IncidentLinkType)
}

func TestSetupRequiresSink(t *testing.T) {
	p := &Plugin{}
	err := p.Setup(SetupParams{
		HubBaseURL:     "https://hub.example.com",
		TrackerBaseURL: "https://tracker.example.com",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event log sink")
}

func TestSetupRequiresEndpoints(t *testing.T) {
	p := &Plugin{}
	err := p.Setup(SetupParams{
		EventLogSink:   discardSink(),
		TrackerBaseURL: "https://tracker.example.com",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hub base URL")

	err = p.Setup(SetupParams{
		EventLogSink: discardSink(),
		HubBaseURL:   "https://hub.example.com",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tracker base URL")
}

func TestSetupWiresEngine(t *testing.T) {
	p := &Plugin{}
	err := p.Setup(SetupParams{
		EventLogSink:   discardSink(),
		HubBaseURL:     "https://hub.example.com",
		TrackerBaseURL: "https://tracker.example.com",
		Custom04:       "7",
	})
	require.NoError(t, err)
	assert.True(t, p.ready)

	p.Dispose()
	assert.False(t, p.ready)
}

func TestExecuteBeforeSetupFails(t *testing.T) {
	p := &Plugin{}
	assert.Equal(t, StatusError, p.Execute(t.Context(), nil, time.Now()))
}
