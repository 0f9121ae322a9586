package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/shadowsight/shadowsight/internal/integrity"
	"github.com/shadowsight/shadowsight/internal/model"
)

var scoreJSON bool

func init() {
	cmd := &cobra.Command{
		Use:   "score [file|-]",
		Short: "Compute a trust score from a JSON array of events",
		Long:  "Read a JSON array of events (objects with a \"type\" field) from a file or stdin and print the trust score with its breakdown. No configuration or store is needed.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runScore,
	}
	cmd.Flags().BoolVar(&scoreJSON, "json", false, "Print the breakdown as JSON")

	RootCmd.AddCommand(cmd)
}

func runScore(cmd *cobra.Command, args []string) {
	in := io.Reader(os.Stdin)
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			exitErr("open events", err)
		}
		defer f.Close()
		in = f
	}
	if err := scoreEvents(in, cmd.OutOrStdout(), scoreJSON); err != nil {
		exitErr("score", err)
	}
}

func scoreEvents(r io.Reader, w io.Writer, asJSON bool) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read events: %w", err)
	}
	var raw []struct {
		Type string `json:"type"`
	}
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode events: %w", err)
	}

	events := make([]model.Event, len(raw))
	for i, e := range raw {
		t, err := model.ParseEventType(e.Type)
		if err != nil {
			t = model.EventType(e.Type)
		}
		events[i] = model.Event{Type: t}
	}
	b := integrity.Explain(events)

	if asJSON {
		out, err := sonic.ConfigStd.MarshalIndent(b, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	}

	fmt.Fprintf(w, "Trust score: %d (%s, severity %s)\n", b.Score, b.Band, b.Severity)
	for _, d := range b.Deductions {
		fmt.Fprintf(w, "  %-10s %3d x %2d = -%d\n", d.Type, d.Count, d.Weight, d.Points)
	}
	_, err = fmt.Fprintf(w, "  %d events, %d unscored\n", b.Events, b.Unscored)
	return err
}
