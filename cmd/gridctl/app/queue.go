package app

import (
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/gridcore/pkg/config"
	"github.com/stacklok/gridcore/pkg/eventbus"
	"github.com/stacklok/gridcore/pkg/httpapi"
	"github.com/stacklok/gridcore/pkg/queue"
	"github.com/stacklok/gridcore/pkg/readiness"
)

func newQueueCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Run the session queue service",
	}
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the queue's HTTP server",
		RunE: func(c *cobra.Command, _ []string) error {
			return runQueueServe(c, v)
		},
	}
	serveCmd.Flags().String("address", ":8081", "Address to listen on")
	serveCmd.Flags().String("secret", "", "Shared secret required on locked routes")
	serveCmd.Flags().Duration("request-timeout", 0, "How long a session request waits before expiring (0 = use default)")
	mustBind(v, config.KeySecretValue, serveCmd.Flags().Lookup("secret"))
	cmd.AddCommand(serveCmd)
	return cmd
}

func runQueueServe(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	address, err := cmd.Flags().GetString("address")
	if err != nil {
		return err
	}
	requestTimeout, err := cmd.Flags().GetDuration("request-timeout")
	if err != nil {
		return err
	}
	if requestTimeout <= 0 {
		requestTimeout = cfg.SessionQueueRequestTimeout
	}

	bus := eventbus.New(0)
	defer bus.Close()
	q := queue.New(bus, requestTimeout)
	defer q.Close()

	ready := readiness.All(readiness.CheckerFunc(bus.Ready))

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	routers := map[string]http.Handler{
		"/": httpapi.NewQueueRouter(q, cfg.Secret, func() error { return ready(ctx) }),
	}
	return serve(ctx, address, routers)
}
