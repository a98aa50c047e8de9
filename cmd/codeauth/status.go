// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/holomush/codeauth/internal/config"
)

// statusServices are queried in this order. "" is the overall status.
var statusServices = []string{"", "postgres", "redis"}

// ServiceStatus is the health of one service reported by the control server.
type ServiceStatus struct {
	Service string `json:"service"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

type statusConfig struct {
	jsonOutput bool
	timeout    time.Duration
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the health of a running codeauth server",
		Long:  `Query the gRPC health service at control_addr and print each dependency.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appCfg, err := readConfig(cmd)
			if err != nil {
				return err
			}
			if appCfg.ControlAddr == "" {
				return oops.Code("CONFIG_INVALID").With("key", "control_addr").Errorf("control_addr is required")
			}
			statuses, err := queryHealth(cmd.Context(), appCfg.ControlAddr, cfg.timeout)
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), statuses, cfg.jsonOutput)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	flags.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "query timeout")
	flags.String("control-addr", "", "gRPC health address of the server")
	config.FlagKey(flags, "control-addr", "control_addr")

	return cmd
}

func queryHealth(ctx context.Context, addr string, timeout time.Duration) ([]ServiceStatus, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, oops.Code("CONTROL_DIAL_FAILED").With("addr", addr).Wrap(err)
	}
	defer func() { _ = conn.Close() }()

	client := healthpb.NewHealthClient(conn)
	statuses := make([]ServiceStatus, 0, len(statusServices))
	for _, service := range statusServices {
		st := ServiceStatus{Service: service}
		if st.Service == "" {
			st.Service = "overall"
		}
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			st.Status = "UNKNOWN"
			st.Error = err.Error()
		} else {
			st.Status = resp.GetStatus().String()
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

func printStatus(out io.Writer, statuses []ServiceStatus, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(statuses); err != nil {
			return oops.Code("STATUS_ENCODE_FAILED").Wrap(err)
		}
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SERVICE\tSTATUS\tERROR")
	for _, st := range statuses {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", st.Service, st.Status, st.Error)
	}
	return w.Flush()
}
