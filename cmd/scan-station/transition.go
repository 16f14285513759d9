package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/BearBump/PassportDesk/internal/api/contract"
	"github.com/BearBump/PassportDesk/internal/models"
	"github.com/BearBump/PassportDesk/internal/scan"
	"github.com/BearBump/PassportDesk/internal/services/transitions"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// passportClient is the single-passport side of the passport API.
type passportClient interface {
	ActionInfo(ctx context.Context, passportID, token string) (contract.ActionInfoResponse, error)
	Transition(ctx context.Context, passportID, token string, req contract.TransitionRequest) (contract.TransitionResponse, error)
}

func newTransitionCommand(ctx *commandContext) *cobra.Command {
	var token, partnerCode string
	var meta map[string]string

	cmd := &cobra.Command{
		Use:   "transition ID STATUS",
		Short: "Move one passport to STATUS using a passport-bound action token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			id, ok := scan.Extract(args[0])
			if !ok {
				return errors.Errorf("not a passport id: %q", args[0])
			}
			if token == "" {
				token = cfg.ScanStation.ActionToken
			}
			to := models.Status(strings.ToUpper(strings.TrimSpace(args[1])))
			client := ctx.factories.newPassportClient(cfg)

			info, err := client.ActionInfo(cmd.Context(), id, token)
			if err != nil {
				return errors.Wrap(err, "action info")
			}
			if err := transitions.ValidateProposal(models.Actor(info.Actor), to, info.AllowedTransitions, meta, partnerCode); err != nil {
				return err
			}

			resp, err := client.Transition(cmd.Context(), id, token, contract.TransitionRequest{
				ToStatus:    to,
				Metadata:    meta,
				PartnerCode: strings.TrimSpace(partnerCode),
			})
			if err != nil {
				return errors.Wrap(err, "transition")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s\n", resp.Passport.SerialNumber, info.Passport.Status, resp.Passport.Status)
			if resp.PointsAwarded > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "+%d points\n", resp.PointsAwarded)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Action token (defaults to scan_station.action_token)")
	cmd.Flags().StringVar(&partnerCode, "partner-code", "", "Partner code for unverified actors")
	cmd.Flags().StringToStringVar(&meta, "meta", nil, "Metadata as key=value")
	return cmd
}
