package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/qs-lzh/training-booking/internal/app"
)

var subscriptionCmd = &cobra.Command{
	Use:   "subscription",
	Short: "Manage holder subscriptions",
}

var subscriptionGrantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Give a holder a subscription starting now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		holderID, _ := cmd.Flags().GetUint("holder")
		days, _ := cmd.Flags().GetInt("days")

		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()

		if cfg.UsesMemoryStore() {
			return errors.New("subscriptions granted to the in-memory store would be lost immediately")
		}
		db, err := openDB(cfg, logger)
		if err != nil {
			return err
		}

		a := app.New(cfg, db, nil, nil, logger)
		defer a.Close()

		sub, err := a.SubscriptionService.Grant(cmd.Context(), holderID, days)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Granted subscription #%d to holder %d until %s\n",
			sub.ID, sub.HolderID, sub.EndsAt.In(cfg.Location).Format(time.DateTime))
		return nil
	},
}

var subscriptionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the subscriptions of a holder",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		holderID, _ := cmd.Flags().GetUint("holder")

		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()

		if cfg.UsesMemoryStore() {
			return errors.New("the in-memory store holds no subscriptions between runs")
		}
		db, err := openDB(cfg, logger)
		if err != nil {
			return err
		}

		a := app.New(cfg, db, nil, nil, logger)
		defer a.Close()

		subs, err := a.SubscriptionService.ListByHolder(cmd.Context(), holderID)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(subs) == 0 {
			fmt.Fprintf(out, "Holder %d has no subscriptions\n", holderID)
			return nil
		}
		now := a.Clock.Now()
		for _, sub := range subs {
			status := "expired"
			if sub.CoversAt(now) {
				status = "active"
			} else if now.Before(sub.StartsAt) {
				status = "upcoming"
			}
			fmt.Fprintf(out, "#%d  %s  ->  %s  %s\n", sub.ID,
				sub.StartsAt.In(cfg.Location).Format(time.DateTime),
				sub.EndsAt.In(cfg.Location).Format(time.DateTime),
				status)
		}
		return nil
	},
}

func init() {
	subscriptionGrantCmd.Flags().Uint("holder", 0, "holder id")
	subscriptionGrantCmd.Flags().Int("days", 30, "length of the subscription in days")
	subscriptionGrantCmd.MarkFlagRequired("holder")
	subscriptionCmd.AddCommand(subscriptionGrantCmd)

	subscriptionListCmd.Flags().Uint("holder", 0, "holder id")
	subscriptionListCmd.MarkFlagRequired("holder")
	subscriptionCmd.AddCommand(subscriptionListCmd)
}
