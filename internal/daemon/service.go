package daemon

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"text/template"
)

const serviceLabel = "dev.allaspects.llmgate"

// launchdPlistTemplate runs llmgate as a persistent macOS user agent.
const launchdPlistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.ProgramPath}}</string>
        <string>start</string>
        <string>--foreground</string>
    </array>
    <key>WorkingDirectory</key>
    <string>{{.DataDir}}</string>
    <key>KeepAlive</key>
    <true/>
    <key>RunAtLoad</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{.DataDir}}/llmgate.out.log</string>
    <key>StandardErrorPath</key>
    <string>{{.DataDir}}/llmgate.err.log</string>
    <key>ProcessType</key>
    <string>Background</string>
</dict>
</plist>
`

// systemdUnitTemplate runs llmgate as a systemd user service.
const systemdUnitTemplate = `[Unit]
Description=llmgate LLM provider router
After=network-online.target

[Service]
Type=simple
ExecStart={{.ProgramPath}} start --foreground
WorkingDirectory={{.DataDir}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

// ServiceSpec describes a service definition for one platform.
type ServiceSpec struct {
	Label       string
	ProgramPath string
	DataDir     string
}

// RenderService renders the service definition for goos ("darwin" or
// "linux") and returns the path, relative to the home directory, where it
// belongs.
func RenderService(goos string, spec ServiceSpec) (relPath string, content []byte, err error) {
	var tmplText string
	switch goos {
	case "darwin":
		tmplText = launchdPlistTemplate
		relPath = filepath.Join("Library", "LaunchAgents", spec.Label+".plist")
	case "linux":
		tmplText = systemdUnitTemplate
		relPath = filepath.Join(".config", "systemd", "user", "llmgate.service")
	default:
		return "", nil, fmt.Errorf("service install is not supported on %s", goos)
	}

	tmpl, err := template.New("service").Parse(tmplText)
	if err != nil {
		return "", nil, fmt.Errorf("parsing service template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, spec); err != nil {
		return "", nil, fmt.Errorf("rendering service definition: %w", err)
	}
	return relPath, buf.Bytes(), nil
}

// InstallService writes and loads the service definition for the current
// platform.
func InstallService(dataDir string) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("determining executable path: %w", err)
	}
	if execPath, err = filepath.EvalSymlinks(execPath); err != nil {
		return fmt.Errorf("resolving executable symlinks: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	rel, content, err := RenderService(runtime.GOOS, ServiceSpec{
		Label:       serviceLabel,
		ProgramPath: execPath,
		DataDir:     dataDir,
	})
	if err != nil {
		return err
	}

	path := filepath.Join(homeDir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating service directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("writing service definition %s: %w", path, err)
	}
	fmt.Printf("Service definition written to %s\n", path)

	var cmds [][]string
	if runtime.GOOS == "darwin" {
		_ = exec.Command("launchctl", "unload", path).Run()
		cmds = [][]string{{"launchctl", "load", path}}
	} else {
		cmds = [][]string{
			{"systemctl", "--user", "daemon-reload"},
			{"systemctl", "--user", "enable", "--now", "llmgate.service"},
		}
	}
	for _, c := range cmds {
		cmd := exec.Command(c[0], c[1:]...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("%s: %w", c[0], err)
		}
	}
	return nil
}

// UninstallService stops the service and removes its definition.
func UninstallService() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}
	rel, _, err := RenderService(runtime.GOOS, ServiceSpec{Label: serviceLabel})
	if err != nil {
		return err
	}
	path := filepath.Join(homeDir, rel)

	if runtime.GOOS == "darwin" {
		_ = exec.Command("launchctl", "unload", path).Run()
	} else {
		_ = exec.Command("systemctl", "--user", "disable", "--now", "llmgate.service").Run()
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing service definition: %w", err)
	}
	fmt.Printf("Service %s uninstalled\n", serviceLabel)
	return nil
}
