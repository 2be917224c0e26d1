package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"warden-hq/warden/pkg/approval"
	"warden-hq/warden/pkg/config"
	"warden-hq/warden/pkg/telemetry/logging"
)

var approvalsFlags struct {
	comment string
}

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "List and resolve approval requests",
}

var approvalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending approval requests",
	RunE:  listApprovals,
}

var approvalsApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a pending request and print the signed token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolveApproval(cmd, args[0], approval.DecisionApprove)
	},
}

var approvalsDenyCmd = &cobra.Command{
	Use:   "deny <id>",
	Short: "Deny a pending request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolveApproval(cmd, args[0], approval.DecisionDeny)
	},
}

func init() {
	rootCmd.AddCommand(approvalsCmd)
	approvalsCmd.AddCommand(approvalsListCmd, approvalsApproveCmd, approvalsDenyCmd)

	approvalsCmd.PersistentFlags().StringVar(&approvalsFlags.comment, "comment", "", "reviewer comment")
}

func openApprovalService() (*approval.Service, func(), error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: logging.Format(cfg.Logging.Format),
	}, os.Stderr)
	if err != nil {
		return nil, nil, err
	}

	signer, err := approval.NewHMACSigner([]byte(os.Getenv(cfg.Approval.SecretEnv)))
	if err != nil {
		return nil, nil, fmt.Errorf("approval secret from %s: %w", cfg.Approval.SecretEnv, err)
	}
	store, err := approval.NewSQLiteStore(cfg.Approval.SQLitePath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open approval store: %w", err)
	}
	svc, err := approval.NewService(store, signer, logger, approval.WithTTL(cfg.Approval.TTL))
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return svc, func() { store.Close() }, nil
}

func listApprovals(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: logging.Format(cfg.Logging.Format),
	}, os.Stderr)
	if err != nil {
		return err
	}
	store, err := approval.NewSQLiteStore(cfg.Approval.SQLitePath, logger)
	if err != nil {
		return fmt.Errorf("failed to open approval store: %w", err)
	}
	defer store.Close()

	pending, err := store.ListPending(cmd.Context())
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Println("No pending approvals")
		return nil
	}
	for _, req := range pending {
		fmt.Printf("%s  %s/%s  expires %s\n  reason: %s\n",
			req.ID, req.Agent, req.Action, req.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"), req.Reason)
	}
	return nil
}

func resolveApproval(cmd *cobra.Command, id string, decision approval.Decision) error {
	svc, closeStore, err := openApprovalService()
	if err != nil {
		return err
	}
	defer closeStore()

	token, err := svc.Approve(cmd.Context(), id, decision, approvalsFlags.comment)
	if err != nil {
		return err
	}
	if decision == approval.DecisionApprove {
		fmt.Printf("Approved %s\nToken: %s\n", id, token)
	} else {
		fmt.Printf("Denied %s\n", id)
	}
	return nil
}
