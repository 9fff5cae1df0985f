// Copyright 2010-2024 Google LLC
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	log "github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/branchcut/mipsearch/mip/go/invariant"
	"github.com/branchcut/mipsearch/mip/go/mipmodel"
	"github.com/branchcut/mipsearch/mip/go/mipsolver"
)

func newSolveCmd(cfg *config) *cobra.Command {
	var (
		size      int
		warmStart string
		saveBasis string
	)
	cmd := &cobra.Command{
		Use:       "solve {knapsack|setpacking|assignment}",
		Short:     "Generate an instance and solve it",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: instanceKinds(),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := generate(args[0], size, cfg.seed)
			if err != nil {
				return err
			}
			opts, err := cfg.options()
			if err != nil {
				return err
			}
			if warmStart != "" {
				if opts.WarmStartBasis, err = os.ReadFile(warmStart); err != nil {
					return fmt.Errorf("reading warm start basis: %w", err)
				}
			}
			if cfg.debug {
				opts.Validator = invariant.NewChecker(nil, true)
			}
			if cfg.metricsAddr != "" {
				reg := prometheus.NewRegistry()
				opts.Reporter = mipsolver.MultiReporter{mipsolver.LogReporter{}, mipsolver.NewMetricsReporter(reg)}
				stop := serveMetrics(cfg.metricsAddr, reg)
				defer stop()
			}
			res, err := solve(cmd, m, opts)
			if err != nil {
				return err
			}
			if saveBasis != "" && res.RootBasis != nil {
				if err := os.WriteFile(saveBasis, res.RootBasis, 0o644); err != nil {
					return fmt.Errorf("writing root basis: %w", err)
				}
			}
			if cfg.jsonOutput {
				return printJSON(cmd.OutOrStdout(), res)
			}
			printResult(cmd.OutOrStdout(), m, res)
			return nil
		},
	}
	cmd.Flags().IntVar(&size, "size", 10, "Size of the generated instance")
	cmd.Flags().StringVar(&warmStart, "warm-start", "", "File with a root basis written by --save-basis")
	cmd.Flags().StringVar(&saveBasis, "save-basis", "", "Write the root basis to this file")
	return cmd
}

func solve(cmd *cobra.Command, m *mipmodel.Model, opts mipsolver.Options) (*mipsolver.Result, error) {
	s, err := mipsolver.New(m, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create the solver: %w", err)
	}
	ctx := cmd.Context()
	if ctx == nil {
		return s.Solve(), nil
	}
	return s.SolveInterruptible(ctx.Done()), nil
}

// serveMetrics exposes `reg` over HTTP and returns a function closing the
// server.
func serveMetrics(addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server: %v", err)
		}
	}()
	return func() {
		if err := srv.Close(); err != nil {
			log.Warningf("closing metrics server: %v", err)
		}
	}
}

func printJSON(w io.Writer, res *mipsolver.Result) error {
	s, err := res.Progress().Struct()
	if err != nil {
		return err
	}
	s.Fields["status"] = structpb.NewStringValue(res.Status.String())
	s.Fields["cuts_added"] = structpb.NewNumberValue(float64(res.CutsAdded))
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printResult(w io.Writer, m *mipmodel.Model, res *mipsolver.Result) {
	fmt.Fprintf(w, "Status: %v\n", res.Status)
	if res.Solution != nil {
		fmt.Fprintf(w, "Objective: %v\n", res.Objective)
	}
	fmt.Fprintf(w, "Best bound: %v\n", res.BestBound)
	fmt.Fprintf(w, "Gap: %.4f%%\n", 100*res.Gap)
	fmt.Fprintln(w, "Statistics: ")
	fmt.Fprintf(w, "  - columns       : %d\n", m.NumCols())
	fmt.Fprintf(w, "  - rows          : %d\n", m.NumRows())
	fmt.Fprintf(w, "  - nodes         : %d\n", res.Nodes)
	fmt.Fprintf(w, "  - leaves        : %d\n", res.Leaves)
	fmt.Fprintf(w, "  - lp iterations : %d\n", res.LpIterations)
	fmt.Fprintf(w, "  - cuts          : %d\n", res.CutsAdded)
	fmt.Fprintf(w, "  - wall time     : %v\n", res.Elapsed)
}
