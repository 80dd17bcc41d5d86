package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/liuck8080/OnchainQuant/core/app"
	"github.com/liuck8080/OnchainQuant/core/host"
	"github.com/liuck8080/OnchainQuant/core/price"
	"github.com/liuck8080/OnchainQuant/core/quant"
	"github.com/liuck8080/OnchainQuant/internal/codec"
	"github.com/liuck8080/OnchainQuant/internal/logger"
)

type simulateFlags struct {
	ratio       uint64
	interval    uint32
	blocks      uint32
	startHeight uint32
	owner       string
	holders     []string
	mint        uint64
	quote       uint64
	logLevel    string
}

// simulation is the report printed after a run.
type simulation struct {
	Height     uint32            `json:"height"`
	State      quant.StateView   `json:"state"`
	Tokens     []quant.TokenInfo `json:"tokens"`
	Dispatches int               `json:"dispatches"`
	Failed     int               `json:"failed"`
	Dropped    int               `json:"dropped"`
}

func newSimulateCmd() *cobra.Command {
	var f simulateFlags

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Deploy one controller in memory, start it and advance N blocks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, sync, err := logger.New("local", f.logLevel)
			if err != nil {
				return err
			}
			defer sync()

			report, err := simulate(cmd, f, log)
			if err != nil {
				return err
			}
			out, err := codec.IndentedJSON{}.Marshal(report)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	cmd.Flags().Uint64Var(&f.ratio, "ratio", 100_000, "investment ratio in units of 1e-6")
	cmd.Flags().Uint32Var(&f.interval, "interval", 2, "blocks between rounds")
	cmd.Flags().Uint32Var(&f.blocks, "blocks", 10, "blocks to advance after start")
	cmd.Flags().Uint32Var(&f.startHeight, "start-height", 0, "initial block height")
	cmd.Flags().StringVar(&f.owner, "owner", "owner", "deployer identity")
	cmd.Flags().StringSliceVar(&f.holders, "holders", nil, "extra accounts that reserve gas")
	cmd.Flags().Uint64Var(&f.mint, "mint", 0, "balance minted to every holder in every default token")
	cmd.Flags().Uint64Var(&f.quote, "quote", 27_000, "static quote of the reference asset")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "warn", "debug, info, warn or error")
	return cmd
}

func simulate(cmd *cobra.Command, f simulateFlags, log *slog.Logger) (*simulation, error) {
	ctx := cmd.Context()
	const program host.ActorID = "sim"

	a, err := app.Run(app.Config{
		Context: ctx,
		Log:     log,
		Host:    host.Options{StartHeight: f.startHeight},
		Prices:  price.NewStatic(map[string]uint64{quant.DefaultSymbol: f.quote}),
		Programs: []app.ProgramConfig{
			{ID: program, Owner: host.ActorID(f.owner), Ratio: f.ratio, Interval: f.interval},
		},
	})
	if err != nil {
		return nil, err
	}
	defer a.Stop()

	if f.mint > 0 {
		for _, holder := range f.holders {
			for _, tok := range quant.DefaultTokens() {
				if _, err := a.Mint(ctx, tok.ProgramID, holder, f.mint); err != nil {
					return nil, fmt.Errorf("mint %s for %s: %w", tok.Name, holder, err)
				}
			}
		}
	}

	for _, id := range append([]string{f.owner}, f.holders...) {
		if _, err := a.Send(ctx, host.ActorID(id), program, quant.MsgGasReserve, nil); err != nil {
			return nil, fmt.Errorf("reserve for %s: %w", id, err)
		}
	}
	if _, err := a.Send(ctx, host.ActorID(f.owner), program, quant.MsgStart, nil); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	ds, err := a.Advance(ctx, f.blocks)
	if err != nil {
		return nil, err
	}

	report := &simulation{Height: a.Height(), Dispatches: len(ds)}
	for _, d := range ds {
		switch {
		case d.Dropped != "":
			report.Dropped++
		case d.Err != nil:
			report.Failed++
		}
	}

	state, err := a.State(ctx, program)
	if err != nil {
		return nil, err
	}
	report.State = *state
	if report.Tokens, err = a.Tokens(ctx, program); err != nil {
		return nil, err
	}
	return report, nil
}
