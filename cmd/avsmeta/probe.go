package main

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/avsprobe/avsmeta/container/bmff"
	"github.com/avsprobe/avsmeta/container/mts"
)

var probeTSCmd = &cobra.Command{
	Use:   "probe-ts <file>",
	Short: "Print the PAT/PMT structure of an MPEG-TS file, with any codec headers the demuxer decoded",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return errors.Wrap(err, "avsmeta: reading input")
		}

		d := mts.NewDemuxer()
		if err := d.Feed(data); err != nil {
			log.Warning("probe-ts: feed error", "error", err.Error())
		}
		d.Finish()

		return printJSON(d.Programs())
	},
}

var probeBMFFCmd = &cobra.Command{
	Use:   "probe-bmff <file>",
	Short: "Print the AVS-family tracks (ID, fourCC, kind, timescale) of an ISO BMFF file without decoding codec payloads",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return errors.Wrap(err, "avsmeta: reading input")
		}

		tracks, _, warnings, err := bmff.Analyze(data)
		if err != nil {
			return errors.Wrap(err, "avsmeta: probe-bmff")
		}
		for _, w := range warnings {
			log.Warning("probe-bmff: warning", "warning", w)
		}

		return printJSON(tracks)
	},
}

func init() {
	rootCmd.AddCommand(probeTSCmd)
	rootCmd.AddCommand(probeBMFFCmd)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
