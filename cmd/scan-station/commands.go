package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/BearBump/PassportDesk/internal/models"
	"github.com/BearBump/PassportDesk/internal/services/dispatch"
	"github.com/BearBump/PassportDesk/internal/services/feedback"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var httpAddr string
	var noHTTP bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Read scans from stdin and serve the operator HTTP surface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if httpAddr == "" {
				httpAddr = cfg.ScanStation.HTTPAddr
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := ctx.logger(cmd.ErrOrStderr())
			st, err := openStation(cfg, ctx.factories, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			emitter := feedback.New(ctx.factories.newPlayer(cfg), feedback.NewLineToaster(cmd.OutOrStdout(), logger), logger).
				WithMuted(cfg.ScanStation.Muted)
			defer emitter.Close()
			st.bus.Subscribe(emitter)
			con := &console{st: st, out: cmd.OutOrStdout(), prime: emitter.Prime}
			st.bus.Subscribe(con)

			if err := st.restore(runCtx); err != nil {
				return err
			}

			httpErr := make(chan error, 1)
			if !noHTTP {
				go func() {
					httpErr <- runStationHTTPServer(runCtx, stationHTTPOpts{
						httpAddr: httpAddr,
						prime:    emitter.Prime,
						st:       st,
					})
				}()
			}

			consoleErr := con.run(runCtx, cmd.InOrStdin())
			if noHTTP {
				return ignoreCanceled(consoleErr)
			}
			if consoleErr != nil && !errors.Is(consoleErr, context.Canceled) {
				stop()
				<-httpErr
				return consoleErr
			}

			// stdin закончился: продолжаем обслуживать HTTP до сигнала
			select {
			case err := <-httpErr:
				return err
			case <-runCtx.Done():
				return ignoreCanceled(<-httpErr)
			}
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "Operator HTTP listen address (defaults to config, then 127.0.0.1:8090)")
	cmd.Flags().BoolVar(&noHTTP, "no-http", false, "Only read scans from stdin")
	return cmd
}

func newQueueCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show pending scans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openRestored(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			items := st.queue.Items()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No pending scans")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), renderQueue(items))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the queue as JSON")
	return cmd
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove ID",
		Short: "Drop one unit from the pending queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openRestored(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.queue.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s, %d pending\n", strings.TrimSpace(args[0]), st.queue.Len())
			return nil
		},
	}
}

func newDispatchCommand(ctx *commandContext) *cobra.Command {
	var carrier, trackingNumber string
	var meta map[string]string

	cmd := &cobra.Command{
		Use:   "dispatch STATUS",
		Short: "Submit every pending unit as one bulk transition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openRestored(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			form := st.reconciler.Form()
			form.SetAll(meta)
			form.Set("carrier", carrier)
			form.Set("tracking_number", trackingNumber)

			target := models.Status(strings.ToUpper(strings.TrimSpace(args[0])))
			out, err := st.reconciler.Submit(cmd.Context(), target)
			if err != nil && !errors.Is(err, dispatch.ErrPartialFailure) {
				return err
			}
			printOutcome(cmd.OutOrStdout(), out, err)
			return err
		},
	}

	cmd.Flags().StringVar(&carrier, "carrier", "", "Carrier name")
	cmd.Flags().StringVar(&trackingNumber, "tracking-number", "", "Shipment tracking number")
	cmd.Flags().StringToStringVar(&meta, "meta", nil, "Extra metadata as key=value")
	return cmd
}

// openRestored opens the station for a one-shot command.
func (c *commandContext) openRestored(cmd *cobra.Command) (*station, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	st, err := openStation(cfg, c.factories, c.logger(cmd.ErrOrStderr()))
	if err != nil {
		return nil, err
	}
	if err := st.restore(cmd.Context()); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func printOutcome(w io.Writer, out dispatch.Outcome, err error) {
	switch {
	case err == nil:
		fmt.Fprintf(w, "Dispatched %d units\n", out.Succeeded)
	case errors.Is(err, dispatch.ErrPartialFailure):
		fmt.Fprintf(w, "%d of %d units failed, kept in queue\n", out.Failed, out.Submitted)
		rows := make([][]string, 0, len(out.FailedItems))
		for i, it := range out.FailedItems {
			rows = append(rows, []string{strconv.Itoa(i + 1), it.ID, it.Error})
		}
		fmt.Fprintln(w, renderTable([]string{"#", "Passport", "Error"}, rows, []columnAlignment{alignRight}))
	default:
		fmt.Fprintf(w, "[xx] %v\n", err)
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
