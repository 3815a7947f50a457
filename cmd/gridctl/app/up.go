package app

import (
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/gridcore/pkg/capabilities"
	"github.com/stacklok/gridcore/pkg/config"
	"github.com/stacklok/gridcore/pkg/distributor"
	"github.com/stacklok/gridcore/pkg/eventbus"
	"github.com/stacklok/gridcore/pkg/grid"
	"github.com/stacklok/gridcore/pkg/httpapi"
	"github.com/stacklok/gridcore/pkg/logger"
	"github.com/stacklok/gridcore/pkg/node"
	"github.com/stacklok/gridcore/pkg/queue"
	"github.com/stacklok/gridcore/pkg/sessionmap"
)

// newUpCmd wires the distributor, queue, a single local node, and the
// session map together in one process, sharing one in-memory event bus
// (spec.md describes the wire protocol between these services but not a
// single-binary quick-start; this supplements it, the way the teacher's
// own `thv run`/`thv up` commands give a one-command path to a working
// deployment).
func newUpCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Run the distributor, queue, session map, and a local node together",
	}
	cmd.Flags().String("address", ":8080", "Address the distributor's HTTP surface listens on")
	cmd.Flags().String("queue-address", ":8081", "Address the queue's client-facing HTTP surface listens on")
	cmd.Flags().String("secret", "", "Shared secret required on locked routes")
	cmd.Flags().StringSlice("upstream", nil, "browserName=url pair for a driver upstream; repeatable")
	cmd.Flags().Int("slots-per-upstream", 1, "Number of slots to advertise per configured upstream")
	mustBind(v, config.KeySecretValue, cmd.Flags().Lookup("secret"))
	cmd.RunE = func(c *cobra.Command, _ []string) error {
		return runUp(c, v)
	}
	return cmd
}

func runUp(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	address, err := cmd.Flags().GetString("address")
	if err != nil {
		return err
	}
	queueAddress, err := cmd.Flags().GetString("queue-address")
	if err != nil {
		return err
	}
	pairs, err := cmd.Flags().GetStringSlice("upstream")
	if err != nil {
		return err
	}
	slotsPerUpstream, err := cmd.Flags().GetInt("slots-per-upstream")
	if err != nil {
		return err
	}

	upstreams, err := parseUpstreams(pairs)
	if err != nil {
		return err
	}
	stereotypes := make([]capabilities.Capabilities, 0, len(upstreams)*slotsPerUpstream)
	for _, u := range upstreams {
		for i := 0; i < slotsPerUpstream; i++ {
			stereotypes = append(stereotypes, u.Stereotype)
		}
	}
	if len(stereotypes) == 0 {
		stereotypes = []capabilities.Capabilities{{"browserName": "cheese"}}
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

	factory := node.NewHTTPFactory(upstreams)
	localNode := node.NewLocal(grid.NewNodeID(), address, stereotypes, factory, "dev", hostOSInfo(), bus)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	d.Start(ctx)
	defer d.Stop()

	status, err := localNode.Status(ctx)
	if err != nil {
		return err
	}
	d.Register(localNode, status)
	logger.Infof("registered local node %s with %d slots", localNode.ID(), len(stereotypes))

	distributorRouters := map[string]http.Handler{
		"/": httpapi.NewDistributorRouter(d, q, bus, cfg.Secret),
	}
	queueRouters := map[string]http.Handler{
		"/": httpapi.NewQueueRouter(q, cfg.Secret, func() error { return d.Ready(ctx) }),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(gctx, address, distributorRouters) })
	g.Go(func() error { return serve(gctx, queueAddress, queueRouters) })
	return g.Wait()
}
