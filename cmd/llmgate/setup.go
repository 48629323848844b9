package main

import (
	"fmt"
	"os"

	"github.com/allaspectsdev/llmgate/internal/config"
	"github.com/allaspectsdev/llmgate/internal/daemon"
)

func cmdStart(args []string) {
	path, rest := splitConfigFlag(args)
	foreground := false
	for _, a := range rest {
		if a == "--foreground" || a == "-f" {
			foreground = true
		}
	}

	cfg := mustLoadConfig(path)
	if err := daemon.Run(cfg, foreground); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func cmdStop(args []string) {
	path, _ := splitConfigFlag(args)
	cfg := mustLoadConfig(path)
	if err := daemon.Stop(cfg.Server.DataDir); err != nil {
		fmt.Fprintf(os.Stderr, "error stopping daemon: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("llmgate stopped")
}

func cmdStatus(args []string) {
	path, _ := splitConfigFlag(args)
	cfg := mustLoadConfig(path)
	if err := daemon.Status(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func cmdInitConfig() {
	if err := config.InitConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "error generating config: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("\nTo add API keys, run: llmgate keys set <provider>")
	fmt.Println("or export the variable named by each provider's credential_env.")
}

func cmdInstallService(args []string) {
	path, _ := splitConfigFlag(args)
	cfg := mustLoadConfig(path)
	if err := daemon.InstallService(cfg.Server.DataDir); err != nil {
		fmt.Fprintf(os.Stderr, "error installing service: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Service installed successfully")
}

func cmdUninstallService() {
	if err := daemon.UninstallService(); err != nil {
		fmt.Fprintf(os.Stderr, "error uninstalling service: %v\n", err)
		os.Exit(1)
	}
}

func cmdConfigExport(args []string) {
	path, rest := splitConfigFlag(args)
	out := "llmgate-export.toml"
	if len(rest) > 0 {
		out = rest[0]
	}
	mustLoadConfig(path)
	if err := config.ExportConfig(out); err != nil {
		fmt.Fprintf(os.Stderr, "error exporting config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config exported to %s\n", out)
}
