package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/olekukonko/tablewriter"

	"github.com/il2fb-go/airbridge/internal/config"
	"github.com/il2fb-go/airbridge/internal/logx"
	"github.com/il2fb-go/airbridge/internal/shutdown"
	"github.com/il2fb-go/airbridge/internal/supervisor"
)

// CLI is the single "airbridge" command's flag set (§6: one flag,
// -c/--config, default airbridge.yml).
type CLI struct {
	Config string `short:"c" name:"config" default:"airbridge.yml" help:"Path to the YAML configuration file."`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("airbridge"),
		kong.Description("Supervisor and integration bridge for the IL-2 dedicated server."),
		kong.UsageOnError(),
	)

	cfg, err := config.Load(cli.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "airbridge: config error: %v\n", err)
		os.Exit(-1)
	}

	log := logx.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	printBootSummary(cfg)

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	sup := supervisor.New(cfg, log)
	if err := sup.Start(ctx); err != nil {
		log.Errorw("startup failed", "error", err)
		os.Exit(-1)
	}

	<-ctx.Done()
	log.Infow("shutdown requested")

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.BootTimeout())
	defer cancel()
	sup.Stop(stopCtx)
}

// printBootSummary renders a compact diagnostics table on start (SPEC_FULL
// §D "Boot summary / diagnostics table"), a presentational supplement to
// the per-subsystem INFO logging the original emits during startup.
func printBootSummary(cfg *config.Config) {
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Component", "Value"}),
	)

	rows := [][]string{
		{"DS executable", cfg.DS.ExePath},
		{"DS console", fmt.Sprintf("%s:%d", cfg.DS.Host, cfg.DS.ConsolePort)},
		{"DS device link", fmt.Sprintf("%s:%d", cfg.DS.Host, cfg.DS.DeviceLinkPort)},
		{"Console proxy", enabledAddr(cfg.ConsoleProxy.Enabled, cfg.ConsoleProxy.BindAddr)},
		{"Device-link proxy", enabledAddr(cfg.DeviceLinkProxy.Enabled, cfg.DeviceLinkProxy.BindAddr)},
		{"Game log", cfg.GameLogPath},
	}
	for _, r := range rows {
		table.Append(r)
	}
	_ = table.Render()
}

func enabledAddr(enabled bool, addr string) string {
	if !enabled {
		return "disabled"
	}
	return addr
}
