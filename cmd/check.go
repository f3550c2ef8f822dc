/*******************************************************************************
 * Copyright (c) 2026 Genome Research Ltd.
 *
 * Permission is hereby granted, free of charge, to any person obtaining
 * a copy of this software and associated documentation files (the
 * "Software"), to deal in the Software without restriction, including
 * without limitation the rights to use, copy, modify, merge, publish,
 * distribute, sublicense, and/or sell copies of the Software, and to
 * permit persons to whom the Software is furnished to do so, subject to
 * the following conditions:
 *
 * The above copyright notice and this permission notice shall be included
 * in all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
 * EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
 * MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
 * IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY
 * CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT,
 * TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
 * SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 ******************************************************************************/

package cmd

import (
	"os"
	"strconv"

	"github.com/dustin/go-humanize" //nolint:misspell
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/wtsi-hgi/ampliprep/workflow"
)

// options for this cmd.
var (
	checkRawRoot  string
	checkMetadata string
	checkConfig   string
)

// checkCmd represents the check command.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check metadata against a sequencing run",
	Long: `Check metadata against a sequencing run.

Reports the samples 'ampliprep run' would process for the given --raw-root
and --metadata: a table of each barcode, its sample ID, and the number and
total size of its read files. Barcodes only in the metadata, and barcode
directories not in the metadata, are listed after the table.

Nothing is written. Exits non-zero if the metadata is invalid, or if any
barcode to be processed has no read files.
`,
	Run: func(cmd *cobra.Command, _ []string) {
		setCLIFormat()
		loadDotEnv()

		rawRoot, err := requiredFlagOrEnv(checkRawRoot, envRawRoot, errRawRootRequired)
		if err != nil {
			die("%s", err)
		}

		metadataPath, err := requiredFlagOrEnv(checkMetadata, envMetadata, errMetadataRequired)
		if err != nil {
			die("%s", err)
		}

		params, err := paramsFromConfigEnvAndFlags(cmd, checkConfig)
		if err != nil {
			die("%s", err)
		}

		report, err := workflow.Check(workflow.Options{
			RawRoot:      rawRoot,
			MetadataPath: metadataPath,
			Params:       params,
		})
		if report != nil {
			printReport(report)
		}

		if err != nil {
			die("%s", err)
		}
	},
}

func init() {
	RootCmd.AddCommand(checkCmd)

	// flags specific to these sub-commands
	checkCmd.Flags().StringVarP(&checkRawRoot, "raw-root", "r", "",
		"directory containing a directory of reads per barcode")
	checkCmd.Flags().StringVarP(&checkMetadata, "metadata", "m", "",
		"tab-separated file mapping barcodes to sample IDs")
	checkCmd.Flags().StringVarP(&checkConfig, "config", "c", "",
		"YAML file of pipeline parameters")
}

func printReport(report *workflow.Report) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Barcode", "Sample", "Files", "Size"})

	for n, item := range report.Work {
		table.Append([]string{
			item.Barcode,
			item.SampleID,
			strconv.Itoa(len(item.Sources)),
			humanize.IBytes(uint64(report.Bytes[n])), //nolint:gosec
		})
	}

	table.Render()

	for _, barcode := range report.MetadataOnly {
		warn("barcode %s is in the metadata but has no read directory", barcode)
	}

	for _, barcode := range report.DirectoryOnly {
		info("barcode directory %s is not in the metadata", barcode)
	}

	cliPrint("%d sample(s) to process\n", len(report.Work))
}
