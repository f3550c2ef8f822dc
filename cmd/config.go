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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/wtsi-hgi/ampliprep/config"
)

const (
	envRawRoot   = "AMPLIPREP_RAW_ROOT"
	envMetadata  = "AMPLIPREP_METADATA"
	envOut       = "AMPLIPREP_OUT"
	envConfig    = "AMPLIPREP_CONFIG"
	envThreads   = "AMPLIPREP_THREADS"
	envWorkers   = "AMPLIPREP_WORKERS"
	envTimeout   = "AMPLIPREP_TIMEOUT"
	envReference = "AMPLIPREP_REFERENCE"
)

var (
	errRawRootRequired  = errors.New("--raw-root required")
	errMetadataRequired = errors.New("--metadata required")
	errRunNameRequired  = errors.New("--run-name required")
	errBadRunName       = errors.New("--run-name must be a single directory name")
)

var dotEnvKeys = []string{
	envRawRoot,
	envMetadata,
	envOut,
	envConfig,
	envThreads,
	envWorkers,
	envTimeout,
	envReference,
}

// loadDotEnv sets any of our environment variables found in .env or
// .env.local in the current directory, without overriding those already in
// the environment.
func loadDotEnv() {
	orig := originalEnvKeys(dotEnvKeys)

	loadDotEnvFile(".env", orig)
	loadDotEnvFile(".env.local", orig)
}

func originalEnvKeys(keys []string) map[string]struct{} {
	orig := map[string]struct{}{}

	for _, key := range keys {
		if _, ok := os.LookupEnv(key); ok {
			orig[key] = struct{}{}
		}
	}

	return orig
}

func loadDotEnvFile(path string, orig map[string]struct{}) {
	env, err := godotenv.Read(path)
	if err != nil {
		return
	}

	for _, key := range dotEnvKeys {
		val, ok := env[key]
		if !ok {
			continue
		}

		if _, ok := orig[key]; ok {
			continue
		}

		_ = os.Setenv(key, val)
	}
}

// paramsFromConfigEnvAndFlags starts from the defaults, applies the config
// file named by --config or AMPLIPREP_CONFIG, then any environment
// variables, and finally any flags the user set.
func paramsFromConfigEnvAndFlags(cmd *cobra.Command, configFlag string) (config.Params, error) {
	p := config.Default()

	if path := flagOrEnv(configFlag, envConfig); path != "" {
		var err error

		p, err = config.Load(path)
		if err != nil {
			return config.Params{}, err
		}
	}

	if err := applyEnvAndFlags(cmd, &p); err != nil {
		return config.Params{}, err
	}

	return p, p.Validate()
}

func applyEnvAndFlags(cmd *cobra.Command, p *config.Params) error {
	var err error

	flags := cmd.Flags()

	if p.Threads, err = intFlagOrEnv(cmd, "threads", envThreads, p.Threads); err != nil {
		return err
	}

	if p.Workers, err = intFlagOrEnv(cmd, "workers", envWorkers, p.Workers); err != nil {
		return err
	}

	if f := flags.Lookup("timeout"); f != nil {
		flagValue := ""
		if f.Changed {
			flagValue = f.Value.String()
		}

		if p.Timeout, err = parseDurationFlagOrEnv(flagValue, envTimeout, p.Timeout); err != nil {
			return err
		}
	}

	if f := flags.Lookup("reference"); f != nil {
		flagValue := ""
		if f.Changed {
			flagValue = f.Value.String()
		}

		if ref := flagOrEnv(flagValue, envReference); ref != "" {
			p.Reference = ref
		}
	}

	return nil
}

func flagOrEnv(flagValue string, envKey string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}

	return strings.TrimSpace(os.Getenv(envKey))
}

func requiredFlagOrEnv(flagValue string, envKey string, missing error) (string, error) {
	v := flagOrEnv(flagValue, envKey)
	if v == "" {
		return "", missing
	}

	return v, nil
}

func intFlagOrEnv(cmd *cobra.Command, name string, envKey string, defaultValue int) (int, error) {
	f := cmd.Flags().Lookup(name)
	if f != nil && f.Changed {
		return cmd.Flags().GetInt(name)
	}

	v := strings.TrimSpace(os.Getenv(envKey))
	if v == "" {
		return defaultValue, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid number in %s: %w", envKey, err)
	}

	return n, nil
}

func parseDurationFlagOrEnv(flagValue string, envKey string, defaultValue time.Duration) (time.Duration, error) {
	if strings.TrimSpace(flagValue) != "" {
		d, err := time.ParseDuration(flagValue)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %q: %w", envKey, err)
		}

		return d, nil
	}

	v := strings.TrimSpace(os.Getenv(envKey))
	if v == "" {
		return defaultValue, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration in %s: %w", envKey, err)
	}

	return d, nil
}

// runDirFromFlagsAndEnv returns the absolute path of the run directory, which
// is the run name inside the output directory.
func runDirFromFlagsAndEnv(outFlag, runName string) (string, error) {
	if runName == "" {
		return "", errRunNameRequired
	}

	if runName != filepath.Base(runName) || runName == "." || runName == ".." {
		return "", errBadRunName
	}

	out := flagOrEnv(outFlag, envOut)
	if out == "" {
		out = "."
	}

	return filepath.Abs(filepath.Join(out, runName))
}
