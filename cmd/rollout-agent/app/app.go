// Package app builds the rollout-agent cobra command directly, the way
// cpeer-controller-manager does: no intermediate app framework, just an
// Options struct and a RunE closure.
package app

import (
	"context"
	"flag"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"k8s.io/component-base/cli/globalflag"

	"github.com/edgefleet/rollout-agent/cmd/rollout-agent/app/options"
	"github.com/edgefleet/rollout-agent/internal/rollout/agent"
	"github.com/edgefleet/rollout-agent/pkg/log"
)

// NewRolloutAgentCommand builds the root rollout-agent command.
func NewRolloutAgentCommand(ctx context.Context) *cobra.Command {
	opts := options.NewOptions()

	cmd := &cobra.Command{
		Use:  "rollout-agent",
		Long: "rollout-agent polls a hawkBit-style rollout server and applies single-artifact firmware updates through a slotted bootloader.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfigFile(opts); err != nil {
				return err
			}

			if err := opts.Complete(); err != nil {
				return err
			}
			if err := opts.Validate(); err != nil {
				return err
			}

			log.Init(opts.Log)

			cfg, err := opts.Config()
			if err != nil {
				log.Error(err, "failed to assemble agent configuration")
				return err
			}

			if err := agent.Init(cfg.Store, cfg.Bootloader); err != nil {
				log.Error(err, "startup init failed")
				return err
			}

			a, err := cfg.NewAgent()
			if err != nil {
				log.Error(err, "failed to build agent")
				return err
			}

			if opts.ConfigFile != "" {
				if err := watchConfigFile(ctx, opts, a); err != nil {
					log.Warn("config file watcher not started", "error", err)
				}
			}

			return a.Run(ctx)
		},
	}

	cmd.AddCommand(newStatusCommand(opts))

	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	fs := cmd.PersistentFlags()
	namedfs := opts.Flags()
	globalflag.AddGlobalFlags(namedfs.FlagSet("global"), cmd.Name())
	for _, f := range namedfs.FlagSets {
		fs.AddFlagSet(f)
	}

	return cmd
}

// loadConfigFile layers a YAML config file over the flag-bound defaults
// when --config is given. The unmarshal runs after pflag has parsed the
// command line, so every field the file names overwrites the flag value,
// including one the user passed explicitly; fields the file omits keep
// their flag value.
func loadConfigFile(opts *options.Options) error {
	if opts.ConfigFile == "" {
		return nil
	}

	viper.SetConfigFile(opts.ConfigFile)
	if err := viper.ReadInConfig(); err != nil {
		return err
	}
	return viper.Unmarshal(opts)
}

// watchConfigFile watches the config file for writes and, when the
// rollout server's host or port changed, redirects the running agent at
// the new endpoint without a restart.
func watchConfigFile(ctx context.Context, opts *options.Options, a *agent.Agent) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(filepath.Dir(opts.ConfigFile)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(opts.ConfigFile) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				handleConfigChange(opts, a)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("config file watcher error", "error", err)
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// handleConfigChange re-reads the config file and, if the rollout
// server's host or port moved, repoints the agent at the new endpoint.
func handleConfigChange(opts *options.Options, a *agent.Agent) {
	prevHost, prevPort := opts.Transport.Host, opts.Transport.Port

	if err := viper.ReadInConfig(); err != nil {
		log.Warn("failed to re-read config file", "error", err)
		return
	}
	if err := viper.Unmarshal(opts); err != nil {
		log.Warn("failed to unmarshal reloaded config", "error", err)
		return
	}

	if opts.Transport.Host != prevHost || opts.Transport.Port != prevPort {
		log.Info("config file changed, redirecting agent",
			"previousHost", prevHost, "previousPort", prevPort,
			"newHost", opts.Transport.Host, "newPort", opts.Transport.Port,
		)
		a.UpdateServer(opts.Transport.Host, opts.Transport.Port)
	}
}
