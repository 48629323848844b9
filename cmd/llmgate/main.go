package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/allaspectsdev/llmgate/internal/config"
	"github.com/allaspectsdev/llmgate/internal/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "start":
		cmdStart(args)
	case "stop":
		cmdStop(args)
	case "status":
		cmdStatus(args)
	case "complete":
		cmdComplete(args)
	case "test-providers":
		cmdTestProviders(args)
	case "keys":
		cmdKeys(args)
	case "init-config":
		cmdInitConfig()
	case "config-export":
		cmdConfigExport(args)
	case "install-service":
		cmdInstallService(args)
	case "uninstall-service":
		cmdUninstallService()
	case "version":
		fmt.Println(version.String())
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: llmgate <command> [options]

Commands:
  start              Start the llmgate daemon
  stop               Stop the running daemon
  status             Show daemon status and provider health
  complete           Send a prompt through the provider router
  test-providers     Probe every configured provider
  keys               Manage API keys (list|set|delete <provider>)
  init-config        Generate default config file
  config-export      Export current config to a TOML file
  install-service    Install as a user service (launchd or systemd)
  uninstall-service  Remove the user service
  version            Print version information
  help               Show this help message

Options:
  --config <path>    Use an explicit config file (all commands)
  --foreground       Run in foreground (with 'start')

Run 'llmgate complete -h' for completion options.`)
}

// splitConfigFlag removes --config from args and returns its value.
func splitConfigFlag(args []string) (path string, rest []string) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--config" || a == "-config":
			if i+1 < len(args) {
				path = args[i+1]
				i++
			}
		case strings.HasPrefix(a, "--config="):
			path = strings.TrimPrefix(a, "--config=")
		default:
			rest = append(rest, a)
		}
	}
	return path, rest
}

// mustLoadConfig loads configuration or exits.
func mustLoadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
