package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/JoshuaRamirez/ACS-sub014/pkg/auth"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/config"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/dispatch"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/encryption"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/events"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/gateway"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/keystore"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/log"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/manager"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/registry"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/resolver"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/rpc"
)

const shutdownGrace = 30 * time.Second

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the HTTP gateway",
	Long: `Start the gateway: the HTTP edge that resolves tenants, authorizes
callers, and dispatches commands to per-tenant worker subprocesses.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})

		masterKey, err := cfg.DecodeMasterKey()
		if err != nil {
			return err
		}
		// Worker subprocesses read the master key and key directory from the
		// environment only; the key may have arrived via the config file, so
		// both are forwarded explicitly.
		workerEnv := []string{
			fmt.Sprintf("%s=%s", config.EnvMasterKey, cfg.MasterKey),
			fmt.Sprintf("%s=%s", config.EnvKeyDir, cfg.KeyDir),
		}

		store, err := keystore.NewStore(cfg.KeyDir, masterKey)
		if err != nil {
			return err
		}
		engine := encryption.NewEngine(store)

		reg, err := registry.Open(cfg.DataDir)
		if err != nil {
			return err
		}
		defer reg.Close()
		if err := reg.Seed(cfg.Tenants); err != nil {
			return err
		}

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		// Audit trail: every broker event becomes a structured log line.
		// External collaborators subscribe the same way.
		audit := broker.Subscribe()
		go func() {
			auditLog := log.WithComponent("audit")
			for e := range audit {
				auditLog.Info().
					Str("event", string(e.Type)).
					Str("tenant_id", e.TenantID).
					Str("correlation_id", e.CorrelationID).
					Msg(e.Message)
			}
		}()

		pool := manager.NewPortPool(cfg.Ports.Min, cfg.Ports.Max)
		channels := rpc.NewChannelPool()
		mgr := manager.New(cfg.WorkerBin, workerEnv, pool, channels, broker, cfg.Timeouts)

		srv := gateway.New(gateway.Deps{
			Config:     cfg,
			Registry:   reg,
			Resolver:   resolver.New(reg, cfg.DevTenant),
			Dispatcher: dispatch.NewDispatcher(dispatch.DefaultRegistry(), mgr, channels, broker, cfg.Timeouts.RPCDeadline),
			Manager:    mgr,
			Engine:     engine,
			Keystore:   store,
			Auth:       auth.New(cfg.JWTSecret, cfg.Accounts),
			Broker:     broker,
		})

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			mainLog := log.WithComponent("main")
			mainLog.Info().Str("signal", sig.String()).Msg("shutting down")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("gateway failed: %w", err)
			}
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

func init() {
	gatewayCmd.Flags().String("config", "acs.yaml", "Path to the gateway configuration file")
}
