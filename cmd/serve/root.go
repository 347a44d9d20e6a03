package serve

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	cmdUtil "github.com/project-dy/Essentials/cmd/util"
	"github.com/project-dy/Essentials/lib/coord"
	"github.com/project-dy/Essentials/lib/daemon"
	"github.com/project-dy/Essentials/lib/logger"
	"github.com/project-dy/Essentials/lib/node"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Logger = logger.GetLogger("serve")

var (
	serveCmdConfig = node.DefaultConfig()
	ServeCmd       = &cobra.Command{
		Use:          "serve",
		Short:        "Start the Essentials node",
		Long:         `Start the Essentials node. The first process on a host becomes the owner of the coordination port, every later one a subordinate that shuts down when the owner does. The configuration can be set via command line flags, environment variables or a config file. The format of the environment variables is ESSENTIALS_<flag> (e.g. ESSENTIALS_DATA_DIR=/srv/essentials)`,
		PreRunE:      processConfig,
		RunE:         run,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	def := node.DefaultConfig()
	flags := ServeCmd.PersistentFlags()

	key := "data-dir"
	flags.String(key, def.DataDir, cmdUtil.WrapString("DataDir holds the default database file of this node"))

	key = "database"
	flags.String(key, "", cmdUtil.WrapString("Database location: a file path, file://, tcp://host:port or unix:///path (the owner's data endpoint) or redis://. Empty uses <data-dir>/database"))

	key = "coordination"
	flags.Bool(key, def.Coordination, cmdUtil.WrapString("Elect an owner on the coordination port. Disabled nodes run standalone"))

	key = "host"
	flags.String(key, def.Host, cmdUtil.WrapString("Host of the coordination port"))

	key = "port"
	flags.Int(key, def.Port, cmdUtil.WrapString("The coordination port"))

	key = "reconnect-backoff"
	flags.Duration(key, def.ReconnectBackoff, cmdUtil.WrapString("Delay between the attempts of a subordinate to reach its owner again"))

	key = "reconnect-attempts"
	flags.Int(key, def.ReconnectAttempts, cmdUtil.WrapString("Attempts per reconnect round before a warning is logged"))

	key = "data-endpoint"
	flags.String(key, def.DataEndpoint, cmdUtil.WrapString("Where the owner serves its database to subordinates (e.g. 127.0.0.1:6001 or /tmp/essentials.sock). Empty disables it"))

	key = "timeout"
	flags.Int(key, def.TimeoutSecond, cmdUtil.WrapString("Timeout in seconds of the data endpoint"))

	key = "workers"
	flags.Int(key, def.Workers, cmdUtil.WrapString("Background jobs the node can run at once (2 to 8)"))

	key = "shutdown-grace"
	flags.Duration(key, def.ShutdownGrace, cmdUtil.WrapString("How long the node waits for its jobs when shutting down"))

	key = "maintenance-interval"
	flags.Duration(key, def.MaintenanceInterval, cmdUtil.WrapString("Interval of the database flush and the ban and warp block cache refresh"))

	key = "config"
	flags.String(key, "", cmdUtil.WrapString("Config file (yaml, toml or json). It is watched and reloaded on change"))

	key = "log-level"
	flags.String(key, def.LogLevel, cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "admin-endpoint"
	flags.String(key, "", cmdUtil.WrapString("Address of the HTTP admin endpoint (/status, /broadcast, /metrics). Empty disables it"))

	key = "block-ip"
	flags.Bool(key, false, cmdUtil.WrapString("Block banned addresses in the host firewall. Asks for the sudo password (ESSENTIALS_SUDO_PASSWORD or the terminal)"))

	key = "redis-prefix"
	flags.String(key, def.RedisKeyPrefix, cmdUtil.WrapString("Key prefix of the redis database"))

	key = "locale"
	flags.String(key, "", cmdUtil.WrapString("Locale giving the region of local players (e.g. ko_KR). Empty reads $LANG"))
}

// processConfig reads the configuration from the command line flags, environment variables and config file
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if file := viper.GetString("config"); file != "" {
		viper.SetConfigFile(file)
		if err := viper.ReadInConfig(); err != nil {
			return err
		}
	}

	serveCmdConfig = node.FromViper(viper.GetViper())

	return serveCmdConfig.Validate()
}

// run starts the node and blocks until a signal arrives or the owner asks this node to shut down
func run(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() { _ = logger.Sync() }()

	n := node.New(serveCmdConfig)
	if err := n.Start(ctx); err != nil {
		var fatal *coord.FatalError
		if errors.As(err, &fatal) {
			Logger.Errorf("can not take part in coordination: %v", err)
		} else {
			Logger.Errorf("failed to start: %v", err)
		}
		return err
	}

	select {
	case <-ctx.Done():
		Logger.Infof("signal received, shutting down")
	case <-n.ShutdownRequested():
	}

	// a second signal abandons the grace period
	stopCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := n.Stop(stopCtx)
	var stragglers *daemon.StragglersError
	if errors.As(err, &stragglers) {
		Logger.Warningf("exiting with %d jobs still running", len(stragglers.Jobs))
	}
	return err
}

// initConfig reads in ENV variables and .env files
func initConfig() {
	cmdUtil.InitEnv()
}
