// cmd/ffbctl/root.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ffb-control-service/internal/app"
	"ffb-control-service/internal/config"
	"ffb-control-service/internal/utils"
)

var (
	configPath string
	portName   string
	simulate   bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "ffbctl",
	Short: "Command line control for the force-feedback wheel",
	Long: `ffbctl talks to the wheel firmware over the serial line.

It shares configuration, profiles and snapshots with the control service, so
a profile saved from the service can be applied here and the other way round.

Connection:
  --port COM5      open a fixed port (auto-detected when omitted)
  --simulate       use the built-in simulated wheel`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the config file")
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "serial port of the wheel")
	rootCmd.PersistentFlags().BoolVar(&simulate, "simulate", false, "use the simulated wheel")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log protocol traffic to stderr")
}

// Execute runs the root command. Ctrl-C cancels the command in flight.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// session is one command's view of the service stack
type session struct {
	stack  *app.Stack
	logger *zap.Logger
}

// openStack loads the config and builds the stack without connecting
func openStack() (*session, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, err
	}
	if simulate {
		cfg.Device.Simulate = true
	}
	// the CLI never streams torque
	cfg.Device.TelemetryEnabled = false

	cfg.Logging.Output = "stderr"
	cfg.Logging.Format = "console"
	cfg.Logging.Level = "warn"
	if verbose {
		cfg.Logging.Level = "debug"
	}
	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, err
	}

	return &session{stack: app.New(cfg, logger), logger: logger}, nil
}

// connect opens the stack and connects to --port, or to the detected wheel
func connect(ctx context.Context) (*session, error) {
	s, err := openStack()
	if err != nil {
		return nil, err
	}

	port := portName
	if port == "" {
		if port, err = s.stack.Manager.AutoDetect(ctx); err != nil {
			s.close()
			return nil, err
		}
	}

	if _, err := s.stack.Manager.Connect(ctx, port); err != nil {
		utils.LogError(s.logger, "Connect failed", err, zap.String("port", port))
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *session) close() {
	s.stack.Close()
	_ = utils.CloseLogger(s.logger)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printApplied(applied bool, done string) {
	if applied {
		fmt.Println(done)
		return
	}
	fmt.Println("Not supported by this wheel, nothing was sent")
}
