package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/marmos91/nbdgo/internal/cli/output"
	"github.com/marmos91/nbdgo/pkg/config"
	"github.com/spf13/cobra"
)

var (
	statusOutput  string
	statusPidFile string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Display the current status of the nbdgo server.

This command checks the PID file and, if the configured listener is
TCP or Unix, probes it with a minimal NBD_OPT_EXPORT_NAME handshake
against the default export to confirm it is actually accepting NBD
connections (not just that the process is alive).

Examples:
  # Check status (uses default settings)
  nbdgo status

  # Output as JSON
  nbdgo status --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/nbdgo/nbdgo.pid)")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// ServerStatus represents the server status information.
type ServerStatus struct {
	Running bool   `json:"running" yaml:"running"`
	PID     int    `json:"pid,omitempty" yaml:"pid,omitempty"`
	Message string `json:"message" yaml:"message"`
	Healthy bool   `json:"healthy" yaml:"healthy"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	status := ServerStatus{Message: "server is not running"}

	pidPath := statusPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	if pidData, err := os.ReadFile(pidPath); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(pidData))); err == nil {
			if process, err := os.FindProcess(pid); err == nil {
				if err := process.Signal(syscall.Signal(0)); err == nil {
					status.Running = true
					status.PID = pid
				}
			}
		}
	}

	cfg, cfgErr := config.Load(GetConfigFile())
	if cfgErr == nil && cfg.Listen.Network != "" {
		info, err := probeExport(cfg.Listen.Network, cfg.Listen.Address, "", 2*time.Second)
		if err == nil {
			status.Running = true
			status.Healthy = true
			status.Message = fmt.Sprintf("server is running and accepting NBD connections (default export size %d bytes)", info.Size)
		} else if status.Running {
			status.Message = "server process exists but is not accepting NBD connections"
		}
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, status)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, status)
	default:
		printStatusTable(status)
	}

	return nil
}

func printStatusTable(status ServerStatus) {
	fmt.Println()
	fmt.Println("nbdgo Server Status")
	fmt.Println("====================")
	fmt.Println()

	if status.Running {
		if status.Healthy {
			fmt.Printf("  Status:     \033[32m● Running\033[0m\n")
		} else {
			fmt.Printf("  Status:     \033[33m● Running (unhealthy)\033[0m\n")
		}
		if status.PID != 0 {
			fmt.Printf("  PID:        %d\n", status.PID)
		}
	} else {
		fmt.Printf("  Status:     \033[31m○ Stopped\033[0m\n")
	}

	fmt.Println()
	fmt.Printf("  %s\n", status.Message)
	fmt.Println()
}
