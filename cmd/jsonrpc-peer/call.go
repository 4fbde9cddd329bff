package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"jsonrpc-peer/client"
	"jsonrpc-peer/loadbalance"
	"jsonrpc-peer/peer"
	"jsonrpc-peer/registry"

	"github.com/spf13/cobra"
)

var callFlags struct {
	addr     string
	service  string
	balancer string
	key      string
	timeout  time.Duration
	notify   bool
}

var callCmd = &cobra.Command{
	Use:   "call method [json-params]",
	Short: "Send one request (or notification) and print the result",
	Long: `Send one request and print its result as JSON.

json-params is a JSON array of positional params; any other JSON value is
sent as the single param. The peer is reached with --addr, or through the
etcd registry of the config file with --service.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCall,
}

func init() {
	f := callCmd.Flags()
	f.StringVar(&callFlags.addr, "addr", "", "host:port of the peer")
	f.StringVar(&callFlags.service, "service", "", "service name to discover (needs [registry] etcd)")
	f.StringVar(&callFlags.balancer, "balancer", "round-robin", "round-robin, weighted-random or consistent-hash")
	f.StringVar(&callFlags.key, "key", "", "routing key for consistent-hash")
	f.DurationVar(&callFlags.timeout, "timeout", 0, "overall deadline (defaults to the timeout window)")
	f.BoolVar(&callFlags.notify, "notify", false, "send a notification and expect no response")
}

// parseParams turns the CLI argument into positional params.
func parseParams(arg string) ([]any, error) {
	if arg == "" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(arg), &v); err != nil {
		return nil, fmt.Errorf("params are not JSON: %w", err)
	}
	if arr, ok := v.([]any); ok {
		return arr, nil
	}
	return []any{v}, nil
}

func runCall(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	method := args[0]
	var params []any
	if len(args) == 2 {
		if params, err = parseParams(args[1]); err != nil {
			return err
		}
	}

	timeout := callFlags.timeout
	if timeout <= 0 {
		timeout = cfg.TimeoutWindow
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	bal, err := loadbalance.New(callFlags.balancer, callFlags.key)
	if err != nil {
		return err
	}

	var reg registry.Registry
	if callFlags.service != "" {
		if len(cfg.Registry.Etcd) == 0 {
			return fmt.Errorf("--service needs [registry] etcd endpoints in the config")
		}
		etcd, err := registry.NewEtcdRegistry(cfg.Registry.Etcd, cfg.Registry.DialTimeout)
		if err != nil {
			return err
		}
		defer etcd.Close()
		reg = etcd
	}

	c := client.NewClient(reg, bal, client.Options{
		Peer:    cfg.Peer(&logger),
		Framing: cfg.Framing,
		Codec:   cfg.Codec,
	})

	var p *peer.Peer
	switch {
	case callFlags.addr != "":
		p, err = c.DialAddr(ctx, callFlags.addr)
	case callFlags.service != "":
		p, err = c.Dial(ctx, callFlags.service)
	default:
		return fmt.Errorf("one of --addr or --service is required")
	}
	if err != nil {
		return err
	}
	defer p.Destroy()

	if callFlags.notify {
		_, err = p.Notify(method, params)
		return err
	}

	result, err := p.Call(ctx, method, params)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(result))
	return nil
}
