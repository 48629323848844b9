package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/allaspectsdev/llmgate/internal/config"
	"github.com/allaspectsdev/llmgate/internal/daemon"
	"github.com/allaspectsdev/llmgate/internal/vault"
)

func cmdKeys(args []string) {
	path, rest := splitConfigFlag(args)
	if len(rest) == 0 {
		fmt.Println("Usage: llmgate keys <list|set|delete> [provider]")
		os.Exit(1)
	}

	cfg := mustLoadConfig(path)
	v := vault.New()

	switch rest[0] {
	case "list":
		for _, p := range cfg.SortedProviders() {
			state := "missing"
			if _, err := v.Resolve(p.ID, p.KeyRef, p.CredentialEnv); err == nil {
				state = "****"
			}
			fmt.Printf("  %-14s %s\n", p.ID, state)
		}

	case "set":
		if len(rest) < 2 {
			fmt.Println("Usage: llmgate keys set <provider>")
			os.Exit(1)
		}
		id := strings.ToLower(rest[1])
		if _, ok := cfg.Providers[id]; !ok {
			fmt.Fprintf(os.Stderr, "warning: %s is not a configured provider\n", id)
		}
		key, err := readSecret(fmt.Sprintf("Enter API key for %s: ", id))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading key: %v\n", err)
			os.Exit(1)
		}
		if err := v.Set(id, key); err != nil {
			fmt.Fprintf(os.Stderr, "error storing key: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Key for %s stored in the OS keychain\n", id)

		if daemon.IsRunning(cfg.Server.DataDir) {
			if err := pushCredential(cfg, id, key); err != nil {
				fmt.Fprintf(os.Stderr, "warning: daemon not updated: %v\n", err)
			} else {
				fmt.Printf("Running daemon updated; %s re-enabled\n", id)
			}
		}

	case "delete":
		if len(rest) < 2 {
			fmt.Println("Usage: llmgate keys delete <provider>")
			os.Exit(1)
		}
		id := strings.ToLower(rest[1])
		if err := v.Delete(id); err != nil {
			fmt.Fprintf(os.Stderr, "error deleting key: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Key for %s deleted\n", id)

	default:
		fmt.Fprintf(os.Stderr, "unknown keys command: %s\n", rest[0])
		os.Exit(1)
	}
}

// readSecret reads without echo from a terminal, or one line from a pipe.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Print(prompt)
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// pushCredential hands a new secret to the running daemon.
func pushCredential(cfg *config.Config, id, secret string) error {
	body, _ := json.Marshal(map[string]string{"secret": secret})
	host := cfg.Server.BindAddress
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	url := fmt.Sprintf("http://%s:%d/v1/providers/%s/credential", host, cfg.Server.Port, id)

	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Auth.Enabled {
		req.Header.Set("Authorization", "Bearer "+cfg.Auth.Token)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon answered %s", resp.Status)
	}
	return nil
}
