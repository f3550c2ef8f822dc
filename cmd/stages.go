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
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/wtsi-hgi/ampliprep/stage"
)

var stagesConfig string

// stagesCmd represents the stages command.
var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List the pipeline stages",
	Long: `List the pipeline stages.

Shows each stage of the pipeline in the order they run, what each needs and
makes, and the parameters it will be given under the current --config and
environment.`,
	Run: func(cmd *cobra.Command, _ []string) {
		loadDotEnv()

		params, err := paramsFromConfigEnvAndFlags(cmd, stagesConfig)
		if err != nil {
			die("%s", err)
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Stage", "Needs", "Makes", "Parameters"})

		for _, s := range stage.Amplicon(params, stage.GetterFetcher{}) {
			table.Append([]string{s.Name, artifacts(s.Needs), artifacts(s.Makes), stageParams(s.Params)})
		}

		table.Render()
	},
}

func init() {
	RootCmd.AddCommand(stagesCmd)

	stagesCmd.Flags().StringVarP(&stagesConfig, "config", "c", "",
		"YAML file of pipeline parameters")
}

func artifacts(as []stage.Artifact) string {
	names := make([]string, len(as))

	for n, a := range as {
		names[n] = string(a)
	}

	return strings.Join(names, ", ")
}

func stageParams(ps []stage.Param) string {
	parts := make([]string, len(ps))

	for n, p := range ps {
		parts[n] = p.Name + "=" + p.Value
	}

	return strings.Join(parts, " ")
}
