package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"photoline/internal/api"
	"photoline/internal/config"
	"photoline/internal/faults"
	"photoline/internal/store"
)

const notifyTimeout = 3 * time.Second

func newUsersCommand(ctx *commandContext) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage members and their approval",
	}
	usersCmd.AddCommand(newUsersAddCommand(ctx))
	usersCmd.AddCommand(newUsersApprovalCommand(ctx, "approve", "Allow a member to upload", true))
	usersCmd.AddCommand(newUsersApprovalCommand(ctx, "revoke", "Stop a member from uploading", false))
	usersCmd.AddCommand(newUsersListCommand(ctx))
	return usersCmd
}

func newUsersAddCommand(ctx *commandContext) *cobra.Command {
	var (
		email    string
		username string
		approved bool
	)
	cmd := &cobra.Command{
		Use:   "add <auth-user-id>",
		Short: "Register a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				name := strings.TrimSpace(username)
				if name == "" {
					name = usernameFor(email, args[0])
				}
				user, err := st.CreateUser(cmd.Context(), store.NewUser{
					AuthUserID: args[0],
					Email:      email,
					Username:   name,
					Approved:   approved,
				})
				if errors.Is(err, store.ErrDuplicate) {
					return fmt.Errorf("member %q already exists", args[0])
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added member %s (%s), approved: %s\n", user.AuthUserID, user.ID, yesNo(user.Approved))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Member email address")
	cmd.Flags().StringVar(&username, "username", "", "Display name (defaults to the email local part)")
	cmd.Flags().BoolVar(&approved, "approved", false, "Approve the member immediately")
	return cmd
}

func newUsersApprovalCommand(ctx *commandContext, use, short string, approved bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <auth-user-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				err := st.SetApproved(cmd.Context(), args[0], approved)
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("member %q not found", args[0])
				}
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Member %s approved: %s\n", args[0], yesNo(approved))
				if cfg.ApprovalTTL() <= 0 {
					return nil
				}
				if err := notifyDaemon(cmd.Context(), ctx, args[0]); err != nil {
					fmt.Fprintf(out, "Daemon not notified (%v); its cached decision expires within %s\n", faults.CodeOf(err), cfg.ApprovalTTL())
				}
				return nil
			})
		},
	}
}

// notifyDaemon asks a running daemon to drop its cached approval decision.
func notifyDaemon(parent context.Context, ctx *commandContext, authUserID string) error {
	client, err := ctx.apiClient("")
	if err != nil {
		return err
	}
	callCtx, cancel := context.WithTimeout(parent, notifyTimeout)
	defer cancel()
	return client.ForgetApproval(callCtx, authUserID)
}

func newUsersListCommand(ctx *commandContext) *cobra.Command {
	var jsonFlag bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				users, err := st.ListUsers(cmd.Context())
				if err != nil {
					return err
				}
				items := make([]api.UserItem, 0, len(users))
				for _, u := range users {
					items = append(items, api.FromUser(u))
				}
				if jsonFlag {
					return writeJSON(cmd, items)
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No members")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, u := range items {
					rows = append(rows, []string{u.AuthUserID, u.Username, u.Email, yesNo(u.Approved), u.CreatedAt})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Auth ID", "Username", "Email", "Approved", "Created"},
					rows,
					nil,
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Output as JSON")
	return cmd
}

// usernameFor derives a username from the email local part.
func usernameFor(email, fallback string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	if local = strings.TrimSpace(local); local != "" {
		return local
	}
	return strings.TrimSpace(fallback)
}
