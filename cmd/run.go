package cmd

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mh-dx/fpv-linkstats/internal/linkstats/application"
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/config"
	"github.com/mh-dx/fpv-linkstats/internal/utils"
	"github.com/spf13/cobra"
)

type runOptions struct {
	ConfigFile string
}

func defaultRunOptions() (*runOptions, error) {
	home, err := utils.Home()
	if err != nil {
		log.Printf("could not get home directory: %v", err)
		return nil, err
	}

	return &runOptions{
		ConfigFile: filepath.Join(home, "config.yaml"),
	}, nil
}

func newRunCmd() (*cobra.Command, error) {
	o, err := defaultRunOptions()
	if err != nil {
		log.Printf("could not get default options: %v", err)
		return nil, err
	}

	cmd := &cobra.Command{
		Use:          "run",
		Short:        "receives the radio event tap and serves link statistics",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         o.run,
	}

	cmd.Flags().StringVarP(&o.ConfigFile, "config", "c", o.ConfigFile, "custom config file path")

	return cmd, nil
}

func (o *runOptions) loadConfig() (config.LinkStatsConfig, error) {
	if _, err := os.Stat(o.ConfigFile); os.IsNotExist(err) {
		log.Printf("no config at %s, using defaults\n", o.ConfigFile)
		return config.Default(), nil
	}
	return config.Load(o.ConfigFile)
}

func (o *runOptions) run(cmd *cobra.Command, _ []string) error {
	cfg, err := o.loadConfig()
	if err != nil {
		log.Printf("could not load config: %v\n", err)
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "starting linkstats, config %s, events %s, metrics %s, snapshots %s\n",
		o.ConfigFile, cfg.EventListen, cfg.MetricsListen, cfg.SnapshotListen)

	app := application.NewLinkStatsApplication(cfg)
	if err := app.StartServices(); err != nil {
		log.Printf("could not start services: %v\n", err)
		return err
	}

	// wait until process is killed
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	return app.StopServices()
}
