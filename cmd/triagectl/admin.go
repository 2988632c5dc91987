package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-haven/backend/internal/app"
	"github.com/zhouzirui/z-haven/backend/internal/model/escalation"
)

func historyCmd() *cobra.Command {
	var ownerID string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print an owner's stored conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.OpenStores(cmd.Context(), cfg, zl)
			if err != nil {
				return err
			}
			defer a.Close()

			messages, err := a.Chat.ListByOwner(cmd.Context(), ownerID)
			if err != nil {
				return err
			}
			for _, m := range messages {
				printMessage(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner", "", "owner id")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func clearCmd() *cobra.Command {
	var ownerID string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete an owner's stored conversation",
		Long:  "Delete an owner's stored conversation directly in the store.\n" +
			"A running API server keeps an active session in memory until it has been idle for TRIAGE_SESSION_IDLE_TTL;\n" +
			"use DELETE /api/sessions/{owner}/messages to clear a live session immediately.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.OpenStores(cmd.Context(), cfg, zl)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Chat.Clear(cmd.Context(), ownerID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared history for %s\n", ownerID)
			return nil
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner", "", "owner id")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func respondersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "responders",
		Short: "List the responder directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.OpenStores(cmd.Context(), cfg, zl)
			if err != nil {
				return err
			}
			defer a.Close()

			items, err := a.Directory.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range items {
				contact := "-"
				if r.ContactInfo != nil {
					contact = *r.ContactInfo
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-6s %-24s %-14s %-18s available=%t\n", r.ID, r.DisplayName, r.Role, contact, r.Available)
			}
			return nil
		},
	}
}

func escalationsCmd() *cobra.Command {
	var ownerID, responderID string
	cmd := &cobra.Command{
		Use:   "escalations",
		Short: "List escalation records by owner or by responder",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (ownerID == "") == (responderID == "") {
				return errors.New("exactly one of --owner or --responder is required")
			}

			a, err := app.OpenStores(cmd.Context(), cfg, zl)
			if err != nil {
				return err
			}
			defer a.Close()

			var records []escalation.Record
			if ownerID != "" {
				records, err = a.Escalations.ListByOwner(cmd.Context(), ownerID)
			} else {
				records, err = a.Escalations.ListByResponder(cmd.Context(), responderID)
			}
			if err != nil {
				return err
			}
			for _, r := range records {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s (%s) -> %s: %q\n",
					r.CreatedAt.Local().Format("2006-01-02 15:04"), r.OwnerName, r.OwnerID, r.ResponderName, r.OriginatingText)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner", "", "owner id")
	cmd.Flags().StringVar(&responderID, "responder", "", "responder id")
	return cmd
}
