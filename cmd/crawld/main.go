/*
File Name:  main.go

Reference orchestrator binary: loads configuration, acquires seeds,
runs the crawl on a timer, persists results to a Sink, geolocates them,
and serves the web API. Modeled on original_source/backend/crawl_loop.py's
main loop (load config -> resolve seeds -> crawl -> store -> sleep -> repeat),
with CLI plumbing grounded on the pack's cobra/color/tablewriter usage
(facebook-time's calnex/cmd and cmd/ptpcheck/cmd packages).
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	core "github.com/bitcrawl/core"
	"github.com/bitcrawl/core/geoip"
	"github.com/bitcrawl/core/identity"
	"github.com/bitcrawl/core/protocol"
	"github.com/bitcrawl/core/seeds"
	"github.com/bitcrawl/core/store"
	"github.com/bitcrawl/core/webapi"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "crawld",
	Short: "bitcrawl peer crawler daemon",
	RunE:  run,
}

func main() {
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "Config.yaml", "path to configuration file")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(core.ExitErrorConfigRead)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, status, err := core.LoadConfig(configFile)
	if err != nil {
		color.Red("error loading config: %v", err)
		os.Exit(status)
	}

	logFile := os.Stdout
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			color.Red("error opening log file: %v", err)
			os.Exit(core.ExitErrorLogInit)
		}
		defer f.Close()
		logFile = f
	}
	logger := log.New(logFile, "crawld ", log.LstdFlags)

	id, err := identity.LoadOrCreate(cfg.IdentityPath)
	if err != nil {
		color.Red("error loading identity: %v", err)
		os.Exit(core.ExitErrorConfigAccess)
	}
	logger.Printf("operator public key: %x", id.PublicKey.SerializeCompressed())

	sink, err := store.NewPogrebSink(cfg.StorePath)
	if err != nil {
		color.Red("error opening store: %v", err)
		os.Exit(core.ExitErrorSinkFailure)
	}
	defer sink.Close()

	var locator core.Geolocator
	if cfg.GeoIPDBPath != "" {
		maxmind, err := geoip.Open(cfg.GeoIPDBPath)
		if err != nil {
			logger.Printf("geoip disabled: %v", err)
		} else {
			locator = geoip.NewRateLimited(maxmind, 50*time.Millisecond)
		}
	}

	if cfg.StaticDir != "" {
		if err := os.MkdirAll(cfg.StaticDir, 0755); err != nil {
			logger.Printf("static dir unavailable: %v", err)
		}
	}
	api := webapi.New(cfg.StaticDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Println("shutdown requested")
		cancel()
	}()

	if len(cfg.WebapiListen) > 0 {
		api.Serve(ctx, cfg.WebapiListen, logger.Printf)
	}

	dnsSource := seeds.NewDNSSource(cfg.SeedDNS)
	snapshotSource := seeds.NewSnapshotSource(cfg.SeedSnapshot)

	network := networkMagic(cfg.NetworkMagic)

	for {
		if ctx.Err() != nil {
			return nil
		}

		resolved, err := acquireSeeds(ctx, dnsSource, snapshotSource)
		if err != nil {
			logger.Printf("seed acquisition failed: %v", err)
			os.Exit(core.ExitErrorNoSeeds)
		}
		logger.Printf("starting crawl with %d seeds", len(resolved))

		cctx := core.Context{
			Log: logger,
			Progress: func(snapshot []core.PeerRecord) {
				enriched := enrich(snapshot, locator)
				api.Update(enriched)
				if err := sink.InsertBatch(enriched); err != nil {
					logger.Printf("store error: %v", err)
				}
			},
		}

		opts := core.Options{
			MaxNodes:      cfg.MaxNodes,
			MaxConcurrent: cfg.MaxConcurrent,
			Network:       network,
		}
		opts.SessionConfig.ConnectTimeout = cfg.Timeout

		records, err := core.Crawl(ctx, cctx, resolved, opts)
		if err != nil && ctx.Err() == nil {
			logger.Printf("crawl error: %v", err)
		}

		enriched := enrich(records, locator)
		if err := sink.InsertBatch(enriched); err != nil {
			logger.Printf("final store error: %v", err)
		}
		api.Update(enriched)

		batch, err := identity.NewBatch(id, enriched)
		if err != nil {
			logger.Printf("batch envelope error: %v", err)
		} else {
			logger.Printf("batch signed: fingerprint=%x signature=%x", batch.Fingerprint, batch.Signature)
			api.UpdateBatch(batch)
			if err := exportBatch(cfg.BatchPath, batch); err != nil {
				logger.Printf("batch export error: %v", err)
			}
		}

		printSummary(enriched)

		if ctx.Err() != nil {
			return nil
		}

		select {
		case <-time.After(30 * time.Minute):
		case <-ctx.Done():
			return nil
		}
	}
}

// acquireSeeds combines the optional snapshot source with the DNS
// seed list, returning an error only if both yield nothing.
func acquireSeeds(ctx context.Context, dns, snapshot core.SeedSource) ([]core.ResolvedSeed, error) {
	var out []core.ResolvedSeed

	if snapshotSeeds, err := snapshot.Seeds(ctx); err == nil {
		out = append(out, snapshotSeeds...)
	}

	dnsSeeds, err := dns.Seeds(ctx)
	if err != nil && len(out) == 0 {
		return nil, err
	}
	out = append(out, dnsSeeds...)

	if len(out) == 0 {
		return nil, fmt.Errorf("crawld: no seeds available from any source")
	}
	return out, nil
}

func enrich(records []core.PeerRecord, locator core.Geolocator) []core.PeerRecord {
	if locator == nil {
		return records
	}
	out := make([]core.PeerRecord, len(records))
	for i, record := range records {
		if info, found := locator.Locate(record.IP); found {
			record.GeoInfo = info
		}
		out[i] = record
	}
	return out
}

// exportBatch writes the signed batch envelope to path as JSON,
// overwriting any previous export. This is the on-disk counterpart to
// /api/batch: a file an operator can pick up without polling the API.
func exportBatch(path string, batch identity.Batch) error {
	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func networkMagic(name string) protocol.Magic {
	switch strings.ToLower(name) {
	case "testnet":
		return protocol.MagicTestnet
	case "regtest":
		return protocol.MagicRegtest
	default:
		return protocol.MagicMainnet
	}
}

func printSummary(records []core.PeerRecord) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"IP", "Port", "Version", "User Agent", "Country"})
	for _, record := range records {
		table.Append([]string{
			record.IP,
			fmt.Sprintf("%d", record.Port),
			fmt.Sprintf("%d", record.ProtocolVersion),
			record.UserAgent,
			record.Country,
		})
	}
	color.Green("crawl complete: %d peers", len(records))
	table.Render()
}
