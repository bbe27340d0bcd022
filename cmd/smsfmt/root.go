package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"smscard-gateway/billing"
	"smscard-gateway/coding"
	"smscard-gateway/formatter"
	"smscard-gateway/secret"
	"smscard-gateway/tariff"
)

var (
	tariffPath string
	rateFlag   string
	asJSON     bool
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "smsfmt",
		Short:         "Classify, segment and price SMS text",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&tariffPath, "tariff", "", "Path to a tariff YAML file with limits and cost per unit")
	cmd.PersistentFlags().StringVar(&rateFlag, "rate", "", "Cost per unit, overrides the tariff (e.g. 0.05)")
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print JSON instead of text")
	cmd.AddCommand(newClassifyCmd())
	cmd.AddCommand(newSegmentCmd())
	cmd.AddCommand(newEstimateCmd())
	cmd.AddCommand(newSealCmd())

	return cmd
}

// loadFormatter builds a formatter from --tariff and --rate.
func loadFormatter() (*formatter.Formatter, error) {
	t := tariff.Default()
	if tariffPath != "" {
		loaded, err := tariff.Load(tariffPath)
		if err != nil {
			return nil, err
		}
		t = loaded
	}
	if rateFlag != "" {
		rate, err := billing.ParseRate(rateFlag)
		if err != nil {
			return nil, err
		}
		t.CostPerUnit = rate
	}
	return formatter.New(t.Limits, t.CostPerUnit), nil
}

// messageText joins the positional arguments, the way a shell user would
// expect for unquoted text.
func messageText(args []string) string {
	return strings.Join(args, " ")
}

func resolveEncoding(f *formatter.Formatter, flag, text string) (coding.Encoding, error) {
	if flag == "" {
		return f.Classify(text), nil
	}
	return coding.ParseEncoding(flag)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify TEXT",
		Short: "Print the encoding a message needs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := coding.Classify(messageText(args))
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]coding.Encoding{"encoding": enc})
			}
			fmt.Fprintln(cmd.OutOrStdout(), enc)
			return nil
		},
	}
}

func newSegmentCmd() *cobra.Command {
	var (
		encoding string
		noSplit  bool
	)
	cmd := &cobra.Command{
		Use:   "segment TEXT",
		Short: "Split a message into transmission segments",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadFormatter()
			if err != nil {
				return err
			}
			text := messageText(args)
			enc, err := resolveEncoding(f, encoding, text)
			if err != nil {
				return err
			}
			segments, err := f.Segment(text, enc, !noSplit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, map[string]interface{}{"encoding": enc, "segments": segments})
			}
			fmt.Fprintf(out, "encoding: %s\nsegments: %d\n", enc, len(segments))
			for i, s := range segments {
				fmt.Fprintf(out, "%d [%d]: %s\n", i+1, utf8.RuneCountInString(s), s)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&encoding, "encoding", "", "GSM or UNICODE (detected when empty)")
	cmd.Flags().BoolVar(&noSplit, "no-split", false, "Keep the message as a single segment")
	return cmd
}

func newEstimateCmd() *cobra.Command {
	var (
		encoding string
		noSplit  bool
	)
	cmd := &cobra.Command{
		Use:   "estimate TEXT",
		Short: "Segment a message and estimate its cost",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadFormatter()
			if err != nil {
				return err
			}
			text := messageText(args)
			enc, err := resolveEncoding(f, encoding, text)
			if err != nil {
				return err
			}
			segments, err := f.Segment(text, enc, !noSplit)
			if err != nil {
				return err
			}
			est, err := f.Estimate(segments, enc)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, est)
			}
			fmt.Fprintf(out, "encoding: %s\n", enc)
			for i, sc := range est.PerSegment {
				fmt.Fprintf(out, "%d [%d chars]: %d unit(s), %s\n", i+1, utf8.RuneCountInString(sc.Content), sc.Units, sc.Cost)
			}
			fmt.Fprintf(out, "total: %d unit(s), %s\n", est.TotalUnits, est.TotalCost)
			return nil
		},
	}
	cmd.Flags().StringVar(&encoding, "encoding", "", "GSM or UNICODE (detected when empty)")
	cmd.Flags().BoolVar(&noSplit, "no-split", false, "Keep the message as a single segment")
	return cmd
}

func newSealCmd() *cobra.Command {
	var psk string
	cmd := &cobra.Command{
		Use:   "seal VALUE",
		Short: "Encrypt a credential for use in the gateway environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if psk == "" {
				psk = os.Getenv("SECRET_KEY")
			}
			sealed, err := secret.Seal(args[0], psk)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
	cmd.Flags().StringVar(&psk, "key", "", "Sealing key (defaults to $SECRET_KEY)")
	return cmd
}
