package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"yaami/config"
	"yaami/core"
	"yaami/logging"
	"yaami/protocols"
)

// app is the state shared by all commands of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader
	in     *bufio.Reader

	configPath      string
	connectionsPath string
	logLevel        string
	logFormat       string

	open     core.Opener
	cfg      *config.Config
	store    *config.Store
	service  *core.Service
	transfer *core.TransferManager
}

// NewRootCmd returns the root cobra command for the yaami CLI.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	return newRootCmd(&app{stdout: stdout, stderr: stderr, stdin: os.Stdin, open: protocols.New})
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "yaami",
		Short:         "Browse and transfer files on S3, FTP, SFTP and SMB storage",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logging.Sync()
		},
	}

	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "config.toml", "Path to the settings file")
	pf.StringVar(&a.connectionsPath, "connections", "", "Path to the connection store (overrides the settings file)")
	pf.StringVar(&a.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	pf.StringVar(&a.logFormat, "log-format", "", "Log format: console|json")

	cmd.AddCommand(newConnectionsCmd(a))
	cmd.AddCommand(newTestCmd(a))
	cmd.AddCommand(newLsCmd(a))
	cmd.AddCommand(newBucketsCmd(a))
	cmd.AddCommand(newGetCmd(a))
	cmd.AddCommand(newPutCmd(a))
	cmd.AddCommand(newRmCmd(a))
	cmd.AddCommand(newMkdirCmd(a))
	cmd.AddCommand(newBatchGetCmd(a))
	cmd.AddCommand(newScheduleCmd(a))
	cmd.AddCommand(newSettingsCmd(a))

	return cmd
}

// setup loads settings over the defaults, applies flag overrides, starts
// logging and opens the connection store.
func (a *app) setup() error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.connectionsPath != "" {
		cfg.Connections = a.connectionsPath
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	a.cfg = cfg

	if err := logging.Init(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.Output,
	}); err != nil {
		return fmt.Errorf("failed to init logging: %w", err)
	}

	a.store = config.NewStore(cfg.Connections)
	if err := a.store.Load(); err != nil {
		return fmt.Errorf("failed to load connections: %w", err)
	}

	a.service = core.NewService(core.NewSessionManager(a.open))
	a.transfer = core.NewTransferManager(a.service)
	return nil
}

// profile resolves a connection by id or name.
func (a *app) profile(ref string) (config.Profile, error) {
	return a.store.Get(ref)
}

// Execute runs the CLI with the process stdio.
func Execute() int {
	root := NewRootCmd(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", core.Message(err))
		return 1
	}
	return 0
}
