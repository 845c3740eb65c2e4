package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JoshuaRamirez/ACS-sub014/pkg/client"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/config"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/types"
)

// EnvToken lets scripts pass a bearer token without putting it on the
// command line.
const EnvToken = "ACS_TOKEN"

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a master key",
	Long: `Generate a random 32-byte master key, base64-encoded, suitable for
the ` + config.EnvMasterKey + ` environment variable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}
		fmt.Println(base64.StdEncoding.EncodeToString(key))
		return nil
	},
}

// apiClient builds a gateway client from the shared --server/--token flags
func apiClient(cmd *cobra.Command) (*client.Client, error) {
	server, _ := cmd.Flags().GetString("server")
	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		token = os.Getenv(EnvToken)
	}

	c := client.NewWithToken(server, token)

	username, _ := cmd.Flags().GetString("username")
	if username != "" {
		password, _ := cmd.Flags().GetString("password")
		if _, err := c.Login(username, password); err != nil {
			return nil, fmt.Errorf("login failed: %w", err)
		}
	}
	return c, nil
}

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenants through the gateway",
}

var tenantAddCmd = &cobra.Command{
	Use:   "add ID",
	Short: "Register a tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("name")

		t, err := c.CreateTenant(&types.TenantDescriptor{
			TenantID:    args[0],
			DisplayName: name,
			IsActive:    true,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Added tenant %s\n", t.TenantID)
		return nil
	},
}

var tenantListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered tenants",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}
		tenants, err := c.ListTenants()
		if err != nil {
			return err
		}
		if len(tenants) == 0 {
			fmt.Fprintln(os.Stderr, "No tenants registered")
			return nil
		}
		for _, t := range tenants {
			fmt.Printf("%s\t%s\n", t.TenantID, t.DisplayName)
		}
		return nil
	},
}

var tenantDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Remove a tenant and stop its worker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}
		if err := c.DeleteTenant(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted tenant %s\n", args[0])
		return nil
	},
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage tenant encryption keys through the gateway",
}

var keysListCmd = &cobra.Command{
	Use:   "list TENANT",
	Short: "List key versions, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}
		versions, err := c.ListKeys(args[0])
		if err != nil {
			return err
		}
		for _, v := range versions {
			fmt.Println(v)
		}
		return nil
	},
}

var keysRotateCmd = &cobra.Command{
	Use:   "rotate TENANT",
	Short: "Activate a new key version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}
		version, err := c.RotateKeys(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Rotated tenant %s to key version %s\n", args[0], version)
		return nil
	},
}

var keysBackupCmd = &cobra.Command{
	Use:   "backup TENANT",
	Short: "Write a point-in-time copy of the tenant's keys",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}
		dir, err := c.BackupKeys(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Backed up keys for tenant %s to %s\n", args[0], dir)
		return nil
	},
}

var keysRestoreCmd = &cobra.Command{
	Use:   "restore TENANT",
	Short: "Restore the tenant's keys from the most recent backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}
		if err := c.RestoreKeys(args[0]); err != nil {
			return err
		}
		fmt.Printf("Restored keys for tenant %s\n", args[0])
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gateway health and running workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}
		health, err := c.Health()
		if err != nil {
			return err
		}
		fmt.Printf("status: %v\ntenants: %v\nworkers: %v (healthy: %v)\n",
			health["status"], health["tenants"], health["workers"], health["workersHealthy"])
		return nil
	},
}

func init() {
	tenantCmd.AddCommand(tenantAddCmd)
	tenantCmd.AddCommand(tenantListCmd)
	tenantCmd.AddCommand(tenantDeleteCmd)

	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysRotateCmd)
	keysCmd.AddCommand(keysBackupCmd)
	keysCmd.AddCommand(keysRestoreCmd)

	for _, c := range []*cobra.Command{tenantCmd, keysCmd, statusCmd} {
		c.PersistentFlags().String("server", "http://127.0.0.1:8080", "Gateway base URL")
		c.PersistentFlags().String("token", "", "Bearer token (or "+EnvToken+")")
		c.PersistentFlags().String("username", "", "Log in with this account instead of a token")
		c.PersistentFlags().String("password", "", "Password for --username")
	}

	tenantAddCmd.Flags().String("name", "", "Display name for the tenant")
}
