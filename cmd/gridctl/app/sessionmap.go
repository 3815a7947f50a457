package app

import (
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/gridcore/pkg/config"
	"github.com/stacklok/gridcore/pkg/httpapi"
	"github.com/stacklok/gridcore/pkg/sessionmap"
)

func newSessionMapCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessionmap",
		Short: "Run the session map service",
	}
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the session map's HTTP server",
		RunE: func(c *cobra.Command, _ []string) error {
			return runSessionMapServe(c, v)
		},
	}
	serveCmd.Flags().String("address", ":8082", "Address to listen on")
	serveCmd.Flags().String("secret", "", "Shared secret required on locked routes")
	serveCmd.Flags().String("redis-addr", "", "Redis address; in-memory map used when empty")
	serveCmd.Flags().Duration("redis-ttl", time.Hour, "Entry TTL when backed by Redis")
	mustBind(v, config.KeySecretValue, serveCmd.Flags().Lookup("secret"))
	cmd.AddCommand(serveCmd)
	return cmd
}

func runSessionMapServe(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	address, err := cmd.Flags().GetString("address")
	if err != nil {
		return err
	}
	redisAddr, err := cmd.Flags().GetString("redis-addr")
	if err != nil {
		return err
	}
	redisTTL, err := cmd.Flags().GetDuration("redis-ttl")
	if err != nil {
		return err
	}

	m := newSessionMap(redisAddr, redisTTL)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	routers := map[string]http.Handler{
		"/": httpapi.NewSessionMapRouter(m, cfg.Secret),
	}
	return serve(ctx, address, routers)
}

func newSessionMap(redisAddr string, ttl time.Duration) sessionmap.Map {
	if redisAddr == "" {
		return sessionmap.NewInMemory()
	}
	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	return sessionmap.NewRedis(client, ttl)
}
