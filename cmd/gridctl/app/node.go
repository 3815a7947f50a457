package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/gridcore/pkg/capabilities"
	"github.com/stacklok/gridcore/pkg/config"
	"github.com/stacklok/gridcore/pkg/errors"
	"github.com/stacklok/gridcore/pkg/eventbus"
	"github.com/stacklok/gridcore/pkg/grid"
	"github.com/stacklok/gridcore/pkg/httpapi"
	"github.com/stacklok/gridcore/pkg/logger"
	"github.com/stacklok/gridcore/pkg/node"
	"github.com/stacklok/gridcore/pkg/secretauth"
)

func newNodeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Run a node agent",
	}
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start a node's HTTP server",
		RunE: func(c *cobra.Command, _ []string) error {
			return runNodeServe(c, v)
		},
	}
	serveCmd.Flags().String("address", ":8083", "Address to listen on")
	serveCmd.Flags().String("uri", "", "This node's own externally reachable URI (defaults to http://localhost<address>)")
	serveCmd.Flags().String("secret", "", "Shared secret required on locked routes")
	serveCmd.Flags().String("version", "dev", "Node version string reported in status")
	serveCmd.Flags().StringSlice("upstream", nil,
		"browserName=url pair for a driver upstream; repeatable. Each pair also becomes a slot stereotype.")
	serveCmd.Flags().Int("slots-per-upstream", 1, "Number of slots to advertise per configured upstream")
	serveCmd.Flags().String("distributor-url", "",
		"Base URL of a distributor to register with directly (spec.md §4.5.1's registration path (a)); "+
			"required when the node runs as a separate process from the distributor, since each process's "+
			"in-memory event bus does not span processes")
	serveCmd.Flags().Duration("register-interval", 10*time.Second,
		"How often to re-POST this node's status to --distributor-url, doubling as its heartbeat")
	mustBind(v, config.KeySecretValue, serveCmd.Flags().Lookup("secret"))
	cmd.AddCommand(serveCmd)
	return cmd
}

func parseUpstreams(pairs []string) ([]node.Upstream, error) {
	upstreams := make([]node.Upstream, 0, len(pairs))
	for _, pair := range pairs {
		browser, url, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, errors.NewConfigError(fmt.Sprintf("invalid --upstream %q, want browserName=url", pair), nil)
		}
		upstreams = append(upstreams, node.Upstream{
			Stereotype: capabilities.Capabilities{"browserName": browser},
			BaseURL:    url,
		})
	}
	return upstreams, nil
}

func runNodeServe(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	address, err := cmd.Flags().GetString("address")
	if err != nil {
		return err
	}
	uri, err := cmd.Flags().GetString("uri")
	if err != nil {
		return err
	}
	if uri == "" {
		uri = "http://localhost" + address
	}
	version, err := cmd.Flags().GetString("version")
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
	distributorURL, err := cmd.Flags().GetString("distributor-url")
	if err != nil {
		return err
	}
	registerInterval, err := cmd.Flags().GetDuration("register-interval")
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

	factory := node.NewHTTPFactory(upstreams)
	bus := eventbus.New(0)
	defer bus.Close()

	n := node.NewLocal(grid.NewNodeID(), uri, stereotypes, factory, version, hostOSInfo(), bus)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if distributorURL != "" {
		go registerLoop(ctx, n, distributorURL, cfg.Secret, registerInterval)
	}

	routers := map[string]http.Handler{
		"/": httpapi.NewNodeRouter(n, cfg.Secret),
	}
	return serve(ctx, address, routers)
}

type statusReporter interface {
	Status(ctx context.Context) (grid.NodeStatus, error)
}

// registerLoop implements spec.md §4.5.1's direct-registration path
// across a process boundary: since each gridctl service's in-memory
// event bus only spans its own process, a node run as a separate
// process must POST its status to the distributor's registration
// endpoint itself, both on startup and on every tick thereafter. The
// distributor's registerNode handler treats every POST identically
// (publishing a NodeStatusEvent), so the periodic re-POST also serves
// as this node's heartbeat (spec.md §4.1's NodeHeartBeat topic,
// realized here as a repeated full status report rather than a
// separate lightweight message).
func registerLoop(ctx context.Context, n statusReporter, distributorURL, secret string, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	client := &http.Client{Timeout: 10 * time.Second}

	register := func() {
		status, err := n.Status(ctx)
		if err != nil {
			logger.Warnw("node: could not read own status for registration", "err", err)
			return
		}
		if err := postRegistration(ctx, client, distributorURL, secret, status); err != nil {
			logger.Warnw("node: registration with distributor failed", "distributorUrl", distributorURL, "err", err)
		}
	}

	register()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			register()
		}
	}
}

func postRegistration(ctx context.Context, client *http.Client, distributorURL, secret string, status grid.NodeStatus) error {
	payload := struct {
		Status grid.NodeStatus `json:"status"`
		Secret string          `json:"secret"`
	}{Status: status, Secret: secret}

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.NewInternalError("encoding node registration payload failed", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, distributorURL+"/se/grid/distributor/node", bytes.NewReader(body))
	if err != nil {
		return errors.NewTransportError("building node registration request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	secretauth.SetHeader(req, secret)

	resp, err := client.Do(req)
	if err != nil {
		return errors.NewTransportError("node registration request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errors.WithCode(errors.NewTransportError("distributor rejected node registration", nil), resp.StatusCode)
	}
	return nil
}

// hostOSInfo reports the OS identity a node advertises in its status
// (spec.md's data model names an osInfo field but not how to obtain
// it). gopsutil/v4/host is already in the dependency graph; a failed
// probe falls back to the Go runtime's own idea of GOOS/GOARCH rather
// than failing node start-up over a cosmetic status field.
func hostOSInfo() grid.OSInfo {
	info, err := host.Info()
	if err != nil {
		return grid.OSInfo{Arch: runtime.GOARCH, Name: runtime.GOOS}
	}
	return grid.OSInfo{
		Arch:    info.KernelArch,
		Name:    info.Platform,
		Version: info.PlatformVersion,
	}
}
