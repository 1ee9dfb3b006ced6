package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/HatiCode/rewardboard/pkg/render"
	"github.com/HatiCode/rewardboard/pkg/rpc"
	rewardtls "github.com/HatiCode/rewardboard/pkg/tls"
	"github.com/HatiCode/rewardboard/pkg/view"
)

type remoteOptions struct {
	session string
	toggle  []string
	showAll *bool
	watch   bool
	keep    bool
	settle  time.Duration
}

func newRemoteCmd() *cobra.Command {
	var (
		addr    string
		showAll bool
		opts    remoteOptions
		tlsCfg  rewardtls.Config
	)

	c := &cobra.Command{
		Use:   "remote",
		Short: "Drive a dashboard session over gRPC",
		Long: `Open (or reuse) a session on a running dashboard, apply selection
changes and print its run table.

Examples:
  rewardctl remote --addr dashboard:50051
  rewardctl remote --toggle 20251004_101500 --watch
  rewardctl remote --session 3f0c... --show-all --keep`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("show-all") {
				opts.showAll = &showAll
			}

			creds := insecure.NewCredentials()
			if tlsCfg.CAFile != "" || tlsCfg.CertFile != "" {
				tlsCfg.Enabled = true
				clientTLS, err := rewardtls.NewClientTLSConfig(tlsCfg)
				if err != nil {
					return fmt.Errorf("tls: %w", err)
				}
				creds = credentials.NewTLS(clientTLS)
			}

			conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
			if err != nil {
				return fmt.Errorf("connect to %s: %w", addr, err)
			}
			defer conn.Close()

			return runRemote(cmd.Context(), rpc.NewClient(conn), cmd.OutOrStdout(), opts)
		},
	}

	c.Flags().StringVar(&addr, "addr", "localhost:50051", "Dashboard gRPC address")
	c.Flags().StringVar(&opts.session, "session", "", "Reuse an existing session instead of opening one")
	c.Flags().StringSliceVar(&opts.toggle, "toggle", nil, "Runs to toggle, in order")
	c.Flags().BoolVar(&showAll, "show-all", false, "Show or hide older runs")
	c.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Keep printing the table on every change")
	c.Flags().BoolVar(&opts.keep, "keep", false, "Leave the session open on exit")
	c.Flags().DurationVar(&opts.settle, "settle", 2*time.Second, "Time to wait for the first run list when opening a session")
	c.Flags().StringVar(&tlsCfg.CAFile, "tls-ca-file", "", "CA file for verifying the dashboard")
	c.Flags().StringVar(&tlsCfg.CertFile, "tls-cert-file", "", "Client certificate for mutual TLS")
	c.Flags().StringVar(&tlsCfg.KeyFile, "tls-key-file", "", "Client private key for mutual TLS")
	return c
}

func runRemote(ctx context.Context, client *rpc.Client, out io.Writer, opts remoteOptions) error {
	sid := opts.session
	if sid == "" {
		var err error
		sid, err = client.OpenSession(ctx)
		if err != nil {
			return fmt.Errorf("open session: %w", err)
		}
		fmt.Fprintf(out, "session %s\n", sid)
		if !opts.keep {
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				_ = client.CloseSession(closeCtx, sid)
			}()
		}
		// A fresh session has no runs until its first poll lands.
		if _, err := waitForRuns(ctx, client, sid, opts.settle); err != nil {
			return err
		}
	}

	for _, run := range opts.toggle {
		if _, err := client.ToggleRun(ctx, sid, run); err != nil {
			return fmt.Errorf("toggle %s: %w", run, err)
		}
	}
	if opts.showAll != nil {
		if _, err := client.SetShowAll(ctx, sid, *opts.showAll); err != nil {
			return fmt.Errorf("show all: %w", err)
		}
	}

	if !opts.watch {
		st, err := client.GetView(ctx, sid)
		if err != nil {
			return fmt.Errorf("get view: %w", err)
		}
		return printRemote(out, st)
	}

	stream, err := client.WatchView(ctx, sid)
	if err != nil {
		return fmt.Errorf("watch view: %w", err)
	}
	for {
		st, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("watch view: %w", err)
		}
		if err := printRemote(out, st); err != nil {
			return err
		}
	}
}

// waitForRuns polls the session until its run list is non-empty or wait
// elapses. An empty model after the wait is not an error.
func waitForRuns(ctx context.Context, client *rpc.Client, sid string, wait time.Duration) (view.Model, error) {
	deadline := time.Now().Add(wait)
	for {
		st, err := client.GetView(ctx, sid)
		if err != nil {
			return view.Model{}, fmt.Errorf("get view: %w", err)
		}
		m, err := rpc.ModelFromStruct(st)
		if err != nil {
			return view.Model{}, fmt.Errorf("decode view: %w", err)
		}
		if len(m.Rows) > 0 || time.Now().After(deadline) {
			return m, nil
		}
		select {
		case <-ctx.Done():
			return m, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func printRemote(out io.Writer, st *structpb.Struct) error {
	m, err := rpc.ModelFromStruct(st)
	if err != nil {
		return fmt.Errorf("decode view: %w", err)
	}
	fmt.Fprintf(out, "selection: %s\n", strings.Join(m.Selection, ", "))
	if err := render.RunTable(out, m.Rows, render.TableOptions{}); err != nil {
		return err
	}
	if m.ShowHide != nil {
		fmt.Fprintln(out, m.ShowHide.Label)
	}
	return nil
}
