package transform

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/slatewood/bridgesync/internal/jira"
	"github.com/slatewood/bridgesync/internal/types"
)

// pushCustomProperties projects a hub artifact's custom-property slots onto
// the outgoing tracker issue. Sentinel mappings set standard fields; the
// rest land in the custom-fields map and are metadata-gated at create time.
func pushCustomProperties(ctx context.Context, cfg *Config, values map[int]types.TypedValue, propertyMappings []types.Mapping, catalog []types.CustomPropertyDefinition, issue *jira.Issue) {
	if issue.CustomFields == nil {
		issue.CustomFields = make(map[int]types.TypedValue)
	}

	for slot, value := range values {
		if value.IsAbsent() {
			continue
		}
		pm := byInternal(propertyMappings, slot)
		if pm == nil {
			continue
		}
		def := catalogDefinition(catalog, slot)

		switch value.Kind() {
		case types.KindList:
			pushSingleList(cfg, value, pm, issue)
		case types.KindMultiList:
			pushMultiList(cfg, value, pm, issue)
		case types.KindUser:
			pushUser(ctx, cfg, value, pm, issue)
		default:
			pushScalar(cfg, value, pm, def, issue)
		}
	}
}

// pushSingleList handles single-select slots: the sentinel branches set
// standard tracker fields, everything else becomes a custom-field option
// carried by name and translated to its id against the create-metadata.
func pushSingleList(cfg *Config, value types.TypedValue, pm *types.Mapping, issue *jira.Issue) {
	optionID, ok := listOptionID(value)
	if !ok {
		return
	}
	vm := byInternal(cfg.PropertyValues, optionID)
	if vm == nil {
		cfg.Log.Warnf("no value mapping for option %d of custom property %d", optionID, pm.InternalID)
		return
	}

	switch pm.ExternalKey {
	case SentinelComponent:
		// The standard components list wins when both are populated.
		if len(issue.Fields.Components) == 0 {
			issue.Fields.Components = []jira.Component{{Name: vm.ExternalKey}}
		}
	case SentinelResolution:
		issue.Fields.Resolution = &jira.Resolution{ID: vm.ExternalKey}
	case SentinelSecurityLevel:
		if !cfg.UseSecurityLevel {
			return
		}
		if _, err := strconv.Atoi(vm.ExternalKey); err != nil {
			cfg.Log.Warnf("security level %q is not numeric", vm.ExternalKey)
			return
		}
		issue.Fields.Security = &jira.SecurityLevel{ID: vm.ExternalKey}
	case SentinelIssueKey, SentinelEnvironment:
		// Issue key is written back after create; environment is not
		// list-typed on the hub side.
	default:
		if id, ok := customFieldID(pm.ExternalKey); ok {
			issue.CustomFields[id] = types.List(vm.ExternalKey)
		}
	}
}

// pushMultiList handles multi-select slots. The component sentinel resolves
// each mapped name through the tracker's component catalog.
func pushMultiList(cfg *Config, value types.TypedValue, pm *types.Mapping, issue *jira.Issue) {
	optionIDs, _ := value.MultiListValue()

	if pm.ExternalKey == SentinelComponent {
		var comps []jira.Component
		for _, raw := range optionIDs {
			optionID, err := strconv.Atoi(raw)
			if err != nil {
				continue
			}
			vm := byInternal(cfg.PropertyValues, optionID)
			if vm == nil {
				cfg.Log.Warnf("no value mapping for component option %d", optionID)
				continue
			}
			if comp := trackerComponentByName(cfg.TrackerComponents, vm.ExternalKey); comp != nil {
				comps = append(comps, jira.Component{ID: comp.ID})
			} else {
				cfg.Log.Warnf("tracker has no component named %q", vm.ExternalKey)
			}
		}
		if len(comps) > 0 && len(issue.Fields.Components) == 0 {
			issue.Fields.Components = comps
		}
		return
	}

	id, ok := customFieldID(pm.ExternalKey)
	if !ok {
		return
	}
	var names []string
	for _, raw := range optionIDs {
		optionID, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		if vm := byInternal(cfg.PropertyValues, optionID); vm != nil {
			names = append(names, vm.ExternalKey)
		}
	}
	if len(names) > 0 {
		issue.CustomFields[id] = types.MultiList(names)
	}
}

// pushUser maps a user slot to a {name: login} custom-field object.
func pushUser(ctx context.Context, cfg *Config, value types.TypedValue, pm *types.Mapping, issue *jira.Issue) {
	raw, _ := value.UserValue()
	userID, err := strconv.Atoi(raw)
	if err != nil {
		return
	}
	m, err := cfg.Resolver.UserByInternalID(ctx, userID)
	if err != nil || m == nil {
		cfg.Log.Warnf("no tracker login for hub user %d", userID)
		return
	}
	if id, ok := customFieldID(pm.ExternalKey); ok {
		issue.CustomFields[id] = types.User(m.ExternalKey)
	}
}

// pushScalar handles text, integer, decimal, boolean, and date slots. The
// environment sentinel sets the standard field; the rest ride as raw typed
// values and only ship when the metadata exposes the field.
func pushScalar(cfg *Config, value types.TypedValue, pm *types.Mapping, def *types.CustomPropertyDefinition, issue *jira.Issue) {
	switch pm.ExternalKey {
	case SentinelEnvironment:
		issue.Fields.Environment = value.DisplayString()
	case SentinelIssueKey:
		// Written back to the hub after create, never pushed.
	default:
		if id, ok := customFieldID(pm.ExternalKey); ok {
			issue.CustomFields[id] = value
		}
	}
	_ = def
}

// pullCustomProperties maps an inbound tracker issue onto a hub artifact's
// custom-property slots, branching on the slot's declared kind and the
// mapping's external key exactly as the push path does in reverse.
func pullCustomProperties(ctx context.Context, cfg *Config, issue *jira.Issue, propertyMappings []types.Mapping, catalog []types.CustomPropertyDefinition) map[int]types.TypedValue {
	values := make(map[int]types.TypedValue)

	for i := range propertyMappings {
		pm := &propertyMappings[i]
		def := catalogDefinition(catalog, pm.InternalID)
		if def == nil {
			continue
		}

		var v types.TypedValue
		switch def.Kind {
		case types.PropertyList:
			v = pullSingleList(cfg, issue, pm)
		case types.PropertyMultiList:
			v = pullMultiList(cfg, issue, pm)
		case types.PropertyUser:
			v = pullUser(ctx, cfg, issue, pm)
		default:
			v = pullScalar(cfg, issue, pm, def)
		}
		if !v.IsAbsent() {
			values[pm.InternalID] = v
		}
	}
	return values
}

// pullSingleList resolves a single-select hub slot from the resolution
// sentinel, the security sentinel (ignored inbound), or a regular tracker
// custom field, translating the tracker option back to a hub option id.
func pullSingleList(cfg *Config, issue *jira.Issue, pm *types.Mapping) types.TypedValue {
	switch pm.ExternalKey {
	case SentinelResolution:
		if issue.Fields.Resolution == nil {
			return types.Absent()
		}
		if vm := byExternal(cfg.PropertyValues, issue.Fields.Resolution.ID); vm != nil {
			return hubOption(vm.InternalID)
		}
		cfg.Log.Warnf("no hub option for tracker resolution %s", issue.Fields.Resolution.ID)
		return types.Absent()
	case SentinelSecurityLevel:
		return types.Absent() // outbound-only sentinel
	}

	id, ok := customFieldID(pm.ExternalKey)
	if !ok {
		return types.Absent()
	}
	cf, ok := issue.CustomFields[id]
	if !ok {
		return types.Absent()
	}
	option, ok := cf.ListValue()
	if !ok {
		return types.Absent()
	}
	if vm := byExternal(cfg.PropertyValues, option); vm != nil {
		return hubOption(vm.InternalID)
	}
	cfg.Log.Warnf("no hub option for tracker value %q on customfield_%d", option, id)
	return types.Absent()
}

// pullMultiList resolves a multi-select hub slot from the component list or
// a multi-valued tracker custom field.
func pullMultiList(cfg *Config, issue *jira.Issue, pm *types.Mapping) types.TypedValue {
	var names []string
	if pm.ExternalKey == SentinelComponent {
		for _, comp := range issue.Fields.Components {
			names = append(names, comp.Name)
		}
	} else {
		id, ok := customFieldID(pm.ExternalKey)
		if !ok {
			return types.Absent()
		}
		cf, ok := issue.CustomFields[id]
		if !ok {
			return types.Absent()
		}
		if multi, ok := cf.MultiListValue(); ok {
			names = multi
		} else if single, ok := cf.ListValue(); ok {
			names = []string{single}
		}
	}

	var options []string
	for _, name := range names {
		if vm := byExternal(cfg.PropertyValues, name); vm != nil {
			options = append(options, strconv.Itoa(vm.InternalID))
		} else {
			cfg.Log.Warnf("no hub option named %q for custom property %d", name, pm.InternalID)
		}
	}
	if options == nil {
		return types.Absent()
	}
	return types.MultiList(options)
}

// pullUser resolves a user slot by tracker login.
func pullUser(ctx context.Context, cfg *Config, issue *jira.Issue, pm *types.Mapping) types.TypedValue {
	id, ok := customFieldID(pm.ExternalKey)
	if !ok {
		return types.Absent()
	}
	cf, ok := issue.CustomFields[id]
	if !ok {
		return types.Absent()
	}
	login, ok := cf.UserValue()
	if !ok {
		return types.Absent()
	}
	m, err := cfg.Resolver.UserByExternalKey(ctx, login)
	if err != nil || m == nil {
		cfg.Log.Warnf("no hub user for tracker login %q", login)
		return types.Absent()
	}
	return types.User(strconv.Itoa(m.InternalID))
}

// pullScalar resolves text/integer/decimal/boolean/date slots. The
// environment and issue-key sentinels copy standard fields; regular tracker
// values are coerced into the slot's declared type.
func pullScalar(cfg *Config, issue *jira.Issue, pm *types.Mapping, def *types.CustomPropertyDefinition) types.TypedValue {
	switch pm.ExternalKey {
	case SentinelEnvironment:
		if issue.Fields.Environment == "" {
			return types.Absent()
		}
		return types.Text(issue.Fields.Environment)
	case SentinelIssueKey:
		return types.Text(issue.Key)
	}

	id, ok := customFieldID(pm.ExternalKey)
	if !ok {
		return types.Absent()
	}
	cf, ok := issue.CustomFields[id]
	if !ok {
		return types.Absent()
	}

	switch cf.Kind() {
	case types.KindBoolean, types.KindDate, types.KindDecimal, types.KindInteger:
		return cf
	case types.KindText:
		s, _ := cf.TextValue()
		return coerceText(cfg, s, def)
	case types.KindList, types.KindMultiList, types.KindUser:
		return types.Text(cf.DisplayString())
	default:
		cfg.Log.Warnf("unrecognized value shape %s on customfield_%d", cf.Kind(), id)
		return types.Absent()
	}
}

// coerceText parses free text into the slot's declared type. Unparseable
// values fall back to text so nothing silently disappears.
func coerceText(cfg *Config, s string, def *types.CustomPropertyDefinition) types.TypedValue {
	switch def.Kind {
	case types.PropertyBoolean:
		if b, err := strconv.ParseBool(strings.ToLower(s)); err == nil {
			return types.Boolean(b)
		}
	case types.PropertyInteger:
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return types.Integer(n)
		}
	case types.PropertyDecimal:
		if d, err := decimal.NewFromString(strings.TrimSpace(s)); err == nil {
			return types.Decimal(d)
		}
	case types.PropertyDate:
		if t, ok := jira.ParseTimestamp(s); ok {
			return types.Date(t.UTC())
		}
		if t, err := time.Parse("2006-01-02", s); err == nil {
			return types.Date(t.UTC())
		}
	}
	return types.Text(s)
}

// listOptionID extracts the hub option id carried in a list value.
func listOptionID(v types.TypedValue) (int, bool) {
	s, ok := v.ListValue()
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return id, true
}

// hubOption renders a hub option id as a list value.
func hubOption(id int) types.TypedValue {
	return types.List(strconv.Itoa(id))
}

// trackerComponentByName finds a component in the tracker catalog.
func trackerComponentByName(catalog []jira.Component, name string) *jira.Component {
	for i := range catalog {
		if strings.EqualFold(catalog[i].Name, name) {
			return &catalog[i]
		}
	}
	return nil
}
