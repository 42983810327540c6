package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/warp/ballot-engine/api"
	"github.com/warp/ballot-engine/ballot"
)

var tallyFlags struct {
	election string
	region   string
	zone     string
	asJSON   bool
}

func init() {
	rootCmd.AddCommand(tallyCmd)

	tallyCmd.Flags().StringVar(&tallyFlags.election, "election", "", "Election ID (default election when empty)")
	tallyCmd.Flags().StringVar(&tallyFlags.region, "region", "", "Restrict to one region")
	tallyCmd.Flags().StringVar(&tallyFlags.zone, "zone", "", "Restrict to one zone")
	tallyCmd.Flags().BoolVar(&tallyFlags.asJSON, "json", false, "Print JSON instead of a table")
}

var tallyCmd = &cobra.Command{
	Use:   "tally",
	Short: "Print results and turnout from the active ballots",
	Long: `Counts the active ballots of an election, optionally scoped to a region or
zone, and prints ranked results with two-decimal percentages followed by
turnout for the same scope.`,
	RunE: runTally,
}

type tallyReport struct {
	Results api.ResultsDTO `json:"results"`
	Turnout api.TurnoutDTO `json:"turnout"`
}

func runTally(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	backend, closeBackend, err := openBackend(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeBackend()

	ledger := ballot.NewLedger(backend, backend)
	ledger.PageSize = cfg.Ballot.PageSize
	engine := ballot.NewTallyEngine(ledger, backend, backend)

	scope := ballot.Scope{
		ElectionID: ballot.ElectionID(tallyFlags.election).Normalize(),
		Region:     tallyFlags.region,
		Zone:       tallyFlags.zone,
	}

	results, err := engine.Results(ctx, scope)
	if err != nil {
		return err
	}
	turnout, err := engine.Turnout(ctx, scope)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if tallyFlags.asJSON {
		return writeTallyJSON(out, results, turnout)
	}
	return writeTallyTable(out, results, turnout)
}

func writeTallyJSON(w io.Writer, results ballot.Results, turnout ballot.Turnout) error {
	report := tallyReport{
		Results: api.ToResultsDTO(results),
		Turnout: api.ToTurnoutDTO(turnout),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func writeTallyTable(w io.Writer, results ballot.Results, turnout ballot.Turnout) error {
	fmt.Fprintf(w, "Scope: %s\n\n", results.Scope)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tCANDIDATE\tVOTES\tPERCENT")
	for i, c := range results.Candidates {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s%%\n", i+1, c.CandidateID, c.Votes, c.Percentage.StringFixed(2))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nTotal votes: %d\n", results.TotalVotes)
	fmt.Fprintf(w, "Turnout:     %d / %d (%s%%)\n",
		turnout.TotalVotes, turnout.TotalVoters, turnout.TurnoutPercentage.StringFixed(2))
	return nil
}
