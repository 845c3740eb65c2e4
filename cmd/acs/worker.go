package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JoshuaRamirez/ACS-sub014/pkg/config"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/encryption"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/keystore"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/log"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/types"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a tenant worker process",
	Long: `Start a worker: a single-tenant subprocess that serves the tenant
worker RPC service on a loopback port. Normally spawned by the gateway, not
run by hand. The tenant and port come from flags or from the TENANT_ID and
RPC_PORT environment variables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, _ := cmd.Flags().GetString("tenant")
		port, _ := cmd.Flags().GetInt("port")

		if tenantID == "" {
			tenantID = os.Getenv("TENANT_ID")
		}
		if port == 0 {
			if v := os.Getenv("RPC_PORT"); v != "" {
				p, err := strconv.Atoi(v)
				if err != nil {
					return fmt.Errorf("invalid RPC_PORT %q: %w", v, err)
				}
				port = p
			}
		}
		if tenantID == "" || port == 0 {
			return fmt.Errorf("worker requires --tenant and --port (or TENANT_ID and RPC_PORT)")
		}
		if !types.TenantIDPattern.MatchString(tenantID) {
			return fmt.Errorf("invalid tenant id %q", tenantID)
		}

		cfg := config.Default()
		log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})

		masterKey, err := cfg.DecodeMasterKey()
		if err != nil {
			return err
		}
		store, err := keystore.NewStore(cfg.KeyDir, masterKey)
		if err != nil {
			return err
		}

		rt := worker.NewRuntime(worker.Options{
			TenantID:       tenantID,
			Port:           port,
			Engine:         encryption.NewEngine(store),
			BufferSize:     cfg.BufferSize,
			EnqueueTimeout: cfg.Timeouts.EnqueueTimeout,
		})

		errCh := make(chan error, 1)
		go func() {
			errCh <- rt.Serve()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			rt.Stop(cfg.Timeouts.GracefulStop)
			return nil
		case err := <-errCh:
			return err
		}
	},
}

func init() {
	workerCmd.Flags().String("tenant", "", "Tenant this worker serves")
	workerCmd.Flags().Int("port", 0, "Loopback port for the worker RPC service")
}
