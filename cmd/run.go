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
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wtsi-hgi/ampliprep/stage"
	"github.com/wtsi-hgi/ampliprep/workflow"
)

// options for this cmd.
var (
	runRawRoot   string
	runMetadata  string
	runName      string
	runOut       string
	runConfig    string
	runResume    bool
	runThreads   int
	runWorkers   int
	runTimeout   string
	runReference string
	runQuiet     bool
)

// runCmd represents the run command.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the amplicon pipeline",
	Long: `Run the amplicon pipeline.

Provide the --raw-root directory of a sequencing run, which holds one
directory of compressed FASTQ files per barcode, and a tab-separated
--metadata file that maps each barcode to a sample ID (in columns called
'Barcode' and '#SampleID' unless your --config says otherwise).

Barcodes in the metadata with no directory are skipped with a warning;
directories not in the metadata (and the 'unclassified' directory) are
ignored.

All output goes to a run directory called --run-name inside the --out
directory (default: the current directory):

  log.txt          the log of everything the run did
  raw_data/        the reads of each sample: consolidated, then trimmed
                   (_porechopped) and filtered (_chopped)
  manifest.tsv     the QIIME import manifest
  demux.qza        the imported reads
  table.qza        the dereplicated feature table
  rep-seqs.qza     the representative sequences
  classifier.qza   the pre-trained classifier
  taxonomy.qza     the taxonomic classification
  exports/         the taxonomy and table exported from QIIME

The run fails if the run directory already holds a raw_data directory, unless
you --resume, in which case the filtered reads already there are used and
the pipeline starts again from building the manifest.

The pipeline's thresholds and tool commands come from a YAML --config file;
--threads, --workers, --timeout and --reference override it. Each of these
flags, and --raw-root, --metadata and --out, can also be set in the
environment (eg. AMPLIPREP_THREADS), or in a .env or .env.local file in the
current directory.

--threads is the number of threads given to each tool; --workers is the number
of samples trimmed and filtered at once. --timeout (eg. 2h) limits how long
any one command may take.

An interrupt stops the run after the current stage finishes.
`,
	Run: func(cmd *cobra.Command, _ []string) {
		if runQuiet {
			setCLIFormat()
		}

		loadDotEnv()

		opts, err := runOptions(cmd)
		if err != nil {
			die("%s", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		res, err := workflow.Run(ctx, opts)
		if err != nil {
			die("%s", err)
		}

		info("run %s complete: %d sample(s) classified in %s", res.RunID, len(res.Manifest), res.Layout.Root)
	},
}

func init() {
	RootCmd.AddCommand(runCmd)

	// flags specific to these sub-commands
	runCmd.Flags().StringVarP(&runRawRoot, "raw-root", "r", "",
		"directory containing a directory of reads per barcode")
	runCmd.Flags().StringVarP(&runMetadata, "metadata", "m", "",
		"tab-separated file mapping barcodes to sample IDs")
	runCmd.Flags().StringVarP(&runName, "run-name", "n", "",
		"name of the run directory to create inside --out")
	runCmd.Flags().StringVarP(&runOut, "out", "o", "",
		"directory to create the run directory in (default .)")
	runCmd.Flags().StringVarP(&runConfig, "config", "c", "",
		"YAML file of pipeline parameters")
	runCmd.Flags().BoolVar(&runResume, "resume", false,
		"skip consolidation, trimming and filtering, reusing a previous run's reads")
	runCmd.Flags().IntVarP(&runThreads, "threads", "t", 1,
		"number of threads for each tool")
	runCmd.Flags().IntVarP(&runWorkers, "workers", "w", 1,
		"number of samples to process at once")
	runCmd.Flags().StringVar(&runTimeout, "timeout", "",
		"maximum duration of any one command (eg. 90m; default no limit)")
	runCmd.Flags().StringVar(&runReference, "reference", "",
		"URL or path of the pre-trained classifier")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false,
		"log plain progress messages only")
}

func runOptions(cmd *cobra.Command) (workflow.Options, error) {
	rawRoot, err := requiredFlagOrEnv(runRawRoot, envRawRoot, errRawRootRequired)
	if err != nil {
		return workflow.Options{}, err
	}

	metadataPath, err := requiredFlagOrEnv(runMetadata, envMetadata, errMetadataRequired)
	if err != nil {
		return workflow.Options{}, err
	}

	runDir, err := runDirFromFlagsAndEnv(runOut, runName)
	if err != nil {
		return workflow.Options{}, err
	}

	params, err := paramsFromConfigEnvAndFlags(cmd, runConfig)
	if err != nil {
		return workflow.Options{}, err
	}

	pwd, err := os.Getwd()
	if err != nil {
		return workflow.Options{}, err
	}

	return workflow.Options{
		RawRoot:      rawRoot,
		MetadataPath: metadataPath,
		RunDir:       runDir,
		Resume:       runResume,
		Params:       params,
		Executor:     stage.LocalExecutor{},
		Fetcher:      stage.GetterFetcher{Pwd: pwd},
		Logger:       appLogger,
	}, nil
}
