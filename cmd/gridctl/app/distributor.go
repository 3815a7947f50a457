package app

import (
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/stacklok/gridcore/pkg/config"
	"github.com/stacklok/gridcore/pkg/distributor"
	"github.com/stacklok/gridcore/pkg/eventbus"
	"github.com/stacklok/gridcore/pkg/httpapi"
	"github.com/stacklok/gridcore/pkg/logger"
	"github.com/stacklok/gridcore/pkg/queue"
	"github.com/stacklok/gridcore/pkg/sessionmap"
)

func newDistributorCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "distributor",
		Short: "Run the distributor service",
	}
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the distributor's HTTP server and scheduler loop",
		RunE: func(c *cobra.Command, _ []string) error {
			return runDistributorServe(c, v)
		},
	}
	bindServeFlags(serveCmd, v)
	cmd.AddCommand(serveCmd)
	return cmd
}

func bindServeFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().String("address", ":8080", "Address to listen on")
	cmd.Flags().String("secret", "", "Shared secret required on locked routes")
	cmd.Flags().Int("healthcheck-interval", 300, "Node health-check interval, in seconds")
	cmd.Flags().Int("purge-interval", 30, "Stale-node purge interval, in seconds")

	mustBind(v, config.KeySecretValue, cmd.Flags().Lookup("secret"))
	mustBind(v, config.KeyDistributorHealthcheckInterval, cmd.Flags().Lookup("healthcheck-interval"))
	mustBind(v, config.KeyDistributorPurgeInterval, cmd.Flags().Lookup("purge-interval"))
}

func mustBind(v *viper.Viper, key string, flag *pflag.Flag) {
	if flag == nil {
		return
	}
	if err := v.BindPFlag(key, flag); err != nil {
		logger.Errorf("error binding flag for %s: %v", key, err)
	}
}

func runDistributorServe(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	address, err := cmd.Flags().GetString("address")
	if err != nil {
		return err
	}

	bus := eventbus.New(0)
	defer bus.Close()
	sessMap := sessionmap.NewInMemory()
	q := queue.New(bus, cfg.SessionQueueRequestTimeout)
	defer q.Close()

	d := distributor.New(bus, sessMap, q, distributor.DefaultSlotSelector{}, distributor.Config{
		HealthcheckInterval: cfg.HealthcheckInterval,
		PurgeInterval:       cfg.PurgeInterval,
		RetryInterval:       cfg.SessionQueueRetryInterval,
		Secret:              cfg.Secret,
	})

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	routers := map[string]http.Handler{
		"/": httpapi.NewDistributorRouter(d, q, bus, cfg.Secret),
	}
	return serve(ctx, address, routers)
}
