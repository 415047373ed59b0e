package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/slatewood/bridgesync/internal/hub"
	"github.com/slatewood/bridgesync/internal/jira"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify hub and tracker connectivity without syncing",
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	params := setupParams()

	transport := hub.NewSOAPTransport(params.HubBaseURL)
	hubClient := hub.NewClient(transport, params.HubLogin, params.HubPassword, params.DataSyncSystemID, params.HubBaseURL)
	if err := hubClient.Authenticate(ctx); err != nil {
		return fmt.Errorf("hub check: %w", err)
	}
	defer func() { _ = hubClient.Disconnect(ctx) }()

	pairs, err := hubClient.ProjectPairs(ctx)
	if err != nil {
		return fmt.Errorf("hub check: list project pairs: %w", err)
	}
	fmt.Printf("hub ok: %s, %d project pair(s) for system %d\n",
		params.HubBaseURL, len(pairs), params.DataSyncSystemID)
	for _, p := range pairs {
		fmt.Printf("  project %d -> %s\n", p.HubProjectID, p.TrackerProjectKey)
	}

	tracker := jira.NewClient(params.TrackerBaseURL, params.TrackerLogin, params.TrackerPassword)
	tracker.UseDefaultCredentials = params.TrackerUseDefaultCredentials
	tracker.InsecureSkipVerify = params.AcceptAllCertificates

	perms, err := tracker.Permissions(ctx)
	if err != nil {
		return fmt.Errorf("tracker check: %w", err)
	}
	if len(perms) == 0 {
		return fmt.Errorf("tracker check: %s returned no permissions for %q",
			params.TrackerBaseURL, viper.GetString("tracker.login"))
	}
	fmt.Printf("tracker ok: %s\n", params.TrackerBaseURL)
	return nil
}
