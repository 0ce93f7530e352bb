package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/wanglam/pbcore"
)

// Version information set at build time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath    string
	protoPaths    []string
	files         []string
	descriptorSet string
	logLevel      string

	cfg    cliConfig
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "pbcore",
		Short: "Encode, decode and verify protobuf messages without generated code",
		Long: `pbcore works with protobuf payloads using only a schema.

Schemas come from .proto files (--proto, with imports searched in
--proto-path) or from a compiled descriptor set (--descriptor-set).
Documents are read and written as YAML; JSON input is accepted too.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.complete(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "TOML config file")
	flags.StringSliceVarP(&opts.protoPaths, "proto-path", "I", nil, "directory searched for imports (repeatable)")
	flags.StringSliceVarP(&opts.files, "proto", "p", nil, ".proto file or directory to load (repeatable)")
	flags.StringVar(&opts.descriptorSet, "descriptor-set", "", "FileDescriptorSet written by protoc --descriptor_set_out")
	flags.StringVar(&opts.logLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		encodeCmd(opts),
		decodeCmd(opts),
		verifyCmd(opts),
		listCmd(opts),
	)
	return rootCmd
}

// complete merges the config file with the flags; flags set on the command
// line win.
func (o *globalOptions) complete(cmd *cobra.Command) error {
	cfg := defaultConfig()
	if o.configPath != "" {
		loaded, err := loadConfig(o.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	if changed(cmd, "proto-path") {
		cfg.ProtoPaths = o.protoPaths
	}
	if changed(cmd, "proto") {
		cfg.Files = o.files
	}
	if changed(cmd, "descriptor-set") {
		cfg.DescriptorSet = o.descriptorSet
	}
	if changed(cmd, "log-level") {
		cfg.LogLevel = o.logLevel
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.logger = logger
	return nil
}

func changed(cmd *cobra.Command, name string) bool {
	f := cmd.Flag(name)
	return f != nil && f.Changed
}

// load builds a Pbcore instance from the configured schema sources.
func (o *globalOptions) load() (*pbcore.Pbcore, error) {
	p := pbcore.New(
		pbcore.WithProtoDirectories(o.cfg.ProtoPaths...),
		pbcore.WithLogger(o.logger),
		pbcore.WithMaxDepth(o.cfg.MaxDepth),
		pbcore.WithObjectOptions(o.cfg.Output),
	)

	switch {
	case o.cfg.DescriptorSet != "" && len(o.cfg.Files) > 0:
		return nil, fmt.Errorf("--descriptor-set cannot be combined with --proto")
	case o.cfg.DescriptorSet != "":
		if err := p.LoadDescriptorSetFile(o.cfg.DescriptorSet); err != nil {
			return nil, err
		}
	case len(o.cfg.Files) > 0:
		if err := p.Load(o.cfg.Files...); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("no schema: pass --proto or --descriptor-set")
	}

	o.logger.Info().
		Int("messages", len(p.ListMessages())).
		Int("enums", len(p.ListEnums())).
		Msg("schema loaded")
	return p, nil
}
