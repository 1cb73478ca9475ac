// Package main provides the rtpmidid command, an RTP-MIDI network endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/rtpmidid"
	"github.com/opd-ai/rtpmidid/midi"
)

// CLI configuration
type CLIConfig struct {
	name         string
	port         uint
	bindAddress  string
	accept       bool
	housekeeping time.Duration
	syncTimeout  time.Duration
	logLevel     string
	invite       string
	help         bool
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseCLIFlags parses args into a configuration. Defaults come from
// rtpmidid.NewOptions, overridden by RTPMIDID_NAME, RTPMIDID_PORT and
// RTPMIDID_LOG_LEVEL when set.
func parseCLIFlags(fs *flag.FlagSet, args []string) (*CLIConfig, error) {
	defaults := rtpmidid.NewOptions()
	config := &CLIConfig{}

	defaultPort := uint(defaults.Port)
	if v := getEnv("RTPMIDID_PORT", ""); v != "" {
		p, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid RTPMIDID_PORT %q: %w", v, err)
		}
		defaultPort = uint(p)
	}

	// Session configuration
	fs.StringVar(&config.name, "name", getEnv("RTPMIDID_NAME", defaults.Name), "Session name announced to peers")
	fs.BoolVar(&config.accept, "accept", defaults.AcceptNewPeers, "Accept invitations from new peers")
	fs.StringVar(&config.invite, "invite", "", "Invite the endpoint at host:port (its control port) on startup")

	// Network configuration
	fs.UintVar(&config.port, "port", defaultPort, "Control port; the RTP port is one above")
	fs.StringVar(&config.bindAddress, "bind", defaults.BindAddress, "Address to bind both ports to")

	// Timing configuration
	fs.DurationVar(&config.housekeeping, "housekeeping", defaults.HousekeepingInterval, "Interval between peer sync sweeps")
	fs.DurationVar(&config.syncTimeout, "sync-timeout", defaults.SyncTimeout, "Time before an unanswered sync is retried")

	// Logging configuration
	fs.StringVar(&config.logLevel, "log-level", getEnv("RTPMIDID_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	// Help
	fs.BoolVar(&config.help, "help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return config, nil
}

// printUsage prints the usage information.
func printUsage(fs *flag.FlagSet) {
	fmt.Println("rtpmidid - RTP-MIDI network endpoint")
	fmt.Println("====================================")
	fmt.Println()
	fmt.Println("Shares MIDI with AppleMIDI compatible peers over UDP:")
	fmt.Println("  • Accepts and sends session invitations")
	fmt.Println("  • Keeps peer clocks synchronized")
	fmt.Println("  • Logs MIDI received from peers")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s [options]\n", os.Args[0])
	fmt.Println()
	fmt.Println("Options:")
	fs.SetOutput(os.Stdout)
	fs.PrintDefaults()
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  RTPMIDID_NAME, RTPMIDID_PORT, RTPMIDID_LOG_LEVEL")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  # Listen on the default ports\n")
	fmt.Printf("  %s\n", os.Args[0])
	fmt.Println()
	fmt.Printf("  # Join a session on another host\n")
	fmt.Printf("  %s -name Studio -invite 192.168.1.20:5004\n", os.Args[0])
}

// validateCLIConfig validates the CLI configuration.
func validateCLIConfig(config *CLIConfig) error {
	if config.port > 65534 {
		return fmt.Errorf("invalid port: must be between 0 and 65534")
	}

	if config.bindAddress == "" {
		return fmt.Errorf("bind address cannot be empty")
	}

	if len(config.name) > 63 {
		return fmt.Errorf("session name cannot exceed 63 bytes")
	}

	if config.housekeeping <= 0 {
		return fmt.Errorf("housekeeping interval must be positive")
	}

	if config.syncTimeout <= 0 {
		return fmt.Errorf("sync timeout must be positive")
	}

	if _, err := logrus.ParseLevel(config.logLevel); err != nil {
		return fmt.Errorf("invalid log level %q", config.logLevel)
	}

	return nil
}

// createOptions converts CLI configuration to node options.
func createOptions(config *CLIConfig) *rtpmidid.Options {
	opts := rtpmidid.NewOptions()
	opts.Name = config.name
	opts.Port = uint16(config.port)
	opts.BindAddress = config.bindAddress
	opts.AcceptNewPeers = config.accept
	opts.HousekeepingInterval = config.housekeeping
	opts.SyncTimeout = config.syncTimeout
	return opts
}

// setupSignalHandling sets up graceful shutdown on interrupt signals.
func setupSignalHandling(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logrus.WithFields(logrus.Fields{
			"function": "setupSignalHandling",
			"signal":   sig.String(),
		}).Info("Received signal, shutting down")
		cancel()
	}()
}

func logMIDI(ssrc uint32, messages []*midi.Message) {
	for _, m := range messages {
		logrus.WithFields(logrus.Fields{
			"function":  "logMIDI",
			"ssrc":      ssrc,
			"message":   m.String(),
			"timestamp": m.Timestamp,
		}).Info("MIDI received")
	}
}

func main() {
	cliConfig, err := parseCLIFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	if cliConfig.help {
		printUsage(flag.CommandLine)
		os.Exit(0)
	}

	if err := validateCLIConfig(cliConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Use -help for usage information.\n")
		os.Exit(1)
	}

	level, _ := logrus.ParseLevel(cliConfig.logLevel)
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	node, err := rtpmidid.New(createOptions(cliConfig))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}
	defer node.Kill()

	node.OnMIDI(logMIDI)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandling(cancel)

	if cliConfig.invite != "" {
		if err := node.Invite(ctx, cliConfig.invite); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "main",
				"remote":   cliConfig.invite,
				"error":    err.Error(),
			}).Error("Invitation failed")
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "main",
		"name":     node.Name(),
		"control":  node.ControlAddr().String(),
		"rtp":      node.DataAddr().String(),
	}).Info("rtpmidid running")

	<-ctx.Done()
}
