package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette/internal/config"
	"github.com/xkilldash9x/marionette/internal/devices"
	"github.com/xkilldash9x/marionette/internal/engine"
	"github.com/xkilldash9x/marionette/internal/observability"
	"github.com/xkilldash9x/marionette/internal/transport"
)

// NewRootCommand builds a fresh command tree. A new instance per execution
// keeps flag state from leaking between runs.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:           "marionette",
		Short:         "Marionette synthesizes human-plausible keyboard and mouse input.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			if err := initializeConfig(v, cfgFile); err != nil {
				return err
			}

			cfg, err := config.Load(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{
					Level: "info", Format: "console", ServiceName: "marionette",
				})
				return fmt.Errorf("loading configuration: %w", err)
			}

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("starting marionette",
				zap.String("version", Version),
				zap.String("session_id", uuid.NewString()))

			cmd.SetContext(withConfig(cmd.Context(), cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./marionette.yaml)")
	rootCmd.PersistentFlags().String("keyboard", "", "substring filter selecting the keyboard device")
	rootCmd.PersistentFlags().String("mouse", "", "substring filter selecting the mouse device")
	rootCmd.PersistentFlags().Bool("no-jitter", false, "disable timing randomization")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newDevicesCommand(),
		newTypeCommand(),
		newClickCommand(),
		newMoveCommand(),
		newScrollCommand(),
		newSetPosCommand(),
	)
	return rootCmd
}

// Execute runs the root command under the given context.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("command failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		return err
	}
	return nil
}

type configKey struct{}

func withConfig(ctx context.Context, cfg config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

func configFromContext(ctx context.Context) config.Config {
	if cfg, ok := ctx.Value(configKey{}).(config.Config); ok {
		return cfg
	}
	return config.Default()
}

// initializeConfig reads the config file and MARIONETTE_* environment
// variables. A missing file is not an error; defaults apply.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("marionette")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("MARIONETTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("reading config file: %w", err)
		}
	}
	return nil
}

// buildEngine wires the transport, applies flag overrides and captures the
// devices named by the filters. The returned cleanup releases everything.
func buildEngine(cmd *cobra.Command) (*engine.Engine, func(), error) {
	cfg := configFromContext(cmd.Context())
	logger := observability.GetLogger()

	if f, err := cmd.Flags().GetString("keyboard"); err == nil && f != "" {
		cfg.Devices.KeyboardFilter = f
	}
	if f, err := cmd.Flags().GetString("mouse"); err == nil && f != "" {
		cfg.Devices.MouseFilter = f
	}
	if off, err := cmd.Flags().GetBool("no-jitter"); err == nil && off {
		cfg.Input.RandomizeDurations = false
	}

	tr, err := transport.New(logger)
	if err != nil {
		return nil, nil, err
	}

	eng, err := engine.New(cfg, tr, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if cerr := eng.Close(); cerr != nil {
			logger.Debug("engine shutdown", zap.Error(cerr))
		}
		observability.Sync()
	}

	if !eng.CaptureInputDevices(cfg.Devices.KeyboardFilter, cfg.Devices.MouseFilter) {
		cleanup()
		return nil, nil, fmt.Errorf("no input devices matched (keyboard=%q mouse=%q)",
			cfg.Devices.KeyboardFilter, cfg.Devices.MouseFilter)
	}
	return eng, cleanup, nil
}

// newDevicesCommand lists the devices the transport can enumerate so filter
// strings can be picked.
func newDevicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the input devices available for capture",
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := transport.New(observability.GetLogger())
			if err != nil {
				return err
			}
			descs, err := tr.EnumerateDevices()
			if err != nil {
				return err
			}
			if len(descs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no input devices found")
				return nil
			}
			for _, d := range descs {
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s  %-40s  %s\n", d.Class, d.HardwareID, d.Path)
			}
			return nil
		},
	}
}

func parseButton(name string) (devices.Button, error) {
	switch strings.ToLower(name) {
	case "left":
		return devices.ButtonLeft, nil
	case "right":
		return devices.ButtonRight, nil
	case "middle":
		return devices.ButtonMiddle, nil
	default:
		return 0, fmt.Errorf("unknown button %q (want left, right or middle)", name)
	}
}
