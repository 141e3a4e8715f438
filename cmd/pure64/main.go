package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mikalv/Pure64/internal/config"
	"github.com/mikalv/Pure64/internal/diskmanager"
)

var (
	defaultLogFormatter = &log.TextFormatter{}

	// cfg is loaded before any subcommand runs
	cfg = config.Default()
)

// infoFormatter prints Info() events as bare lines
type infoFormatter struct{}

func (f *infoFormatter) Format(entry *log.Entry) ([]byte, error) {
	if entry.Level == log.InfoLevel {
		return append([]byte(entry.Message), '\n'), nil
	}
	return defaultLogFormatter.Format(entry)
}

func newCmd() *cobra.Command {
	var (
		flagFile    string
		flagConfig  string
		flagVerbose bool
	)
	cmd := &cobra.Command{
		Use:           "pure64",
		Short:         "build and edit Pure64 boot images",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			cfg = loaded
			if cmd.Flags().Changed("file") || cfg.Image.Path == "" {
				cfg.Image.Path = flagFile
			}

			log.SetFormatter(new(infoFormatter))
			if flagVerbose {
				log.SetLevel(log.DebugLevel)
				return nil
			}
			level, err := log.ParseLevel(cfg.Log.Level)
			if err != nil {
				return fmt.Errorf("log.level: %w", err)
			}
			log.SetLevel(level)
			return nil
		},
	}

	cmd.AddCommand(initCmd())
	cmd.AddCommand(mkfsCmd())
	cmd.AddCommand(inspectCmd())
	cmd.AddCommand(lsCmd())
	cmd.AddCommand(catCmd())
	cmd.AddCommand(cpCmd())
	cmd.AddCommand(mkdirCmd())
	cmd.AddCommand(rmCmd())
	cmd.AddCommand(rmdirCmd())
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(serialCmd())

	cmd.PersistentFlags().StringVarP(&flagFile, "file", "f", "pure64.img", "Path to the Pure64 image, overrides the config file")
	cmd.PersistentFlags().StringVar(&flagConfig, "config", "pure64.json", "Path to the JSON config file; defaults apply when it does not exist")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log debug output")

	return cmd
}

// openManager opens the configured image without a USB gadget.
func openManager() (*diskmanager.Manager, error) {
	imgOpts, err := cfg.ImageOptions()
	if err != nil {
		return nil, err
	}
	return diskmanager.New(diskmanager.Config{
		DiskPath: cfg.Image.Path,
		Image:    imgOpts,
	}, diskmanager.NewNoOpGadget())
}

func main() {
	if err := newCmd().Execute(); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}
