package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/defra"
	"github.com/jackzampolin/folio/internal/home"
)

var defraCmd = &cobra.Command{
	Use:   "defra",
	Short: "Manage the DefraDB container",
	Long: `Manage the DefraDB container that stores originals, revisions,
chapters, flags and jobs. Data lives in ~/.folio/defradb/ unless
defra.data_path says otherwise. Nothing here applies when defra.url
points at a node folio does not manage.

Examples:
  folio defra start   # Create or start the container
  folio defra status  # Container state and health
  folio defra logs    # Recent container output`,
}

var (
	logsTail    string
	waitTimeout time.Duration
)

func init() {
	defraCmd.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "Create or start the DefraDB container",
			RunE: withManager(func(ctx context.Context, mgr *defra.DockerManager) error {
				fmt.Println("Starting DefraDB...")
				if err := mgr.Start(ctx); err != nil {
					return fmt.Errorf("failed to start DefraDB: %w", err)
				}
				fmt.Printf("DefraDB is running at %s\n", mgr.URL())
				return nil
			}),
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Stop the DefraDB container (data is kept)",
			RunE: withManager(func(ctx context.Context, mgr *defra.DockerManager) error {
				if err := mgr.Stop(ctx); err != nil {
					return fmt.Errorf("failed to stop DefraDB: %w", err)
				}
				fmt.Println("DefraDB stopped")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show container state and health",
			RunE:  withManager(printDefraStatus),
		},
		&cobra.Command{
			Use:   "remove",
			Short: "Remove the DefraDB container (data is kept)",
			RunE: withManager(func(ctx context.Context, mgr *defra.DockerManager) error {
				if err := mgr.Remove(ctx); err != nil {
					return err
				}
				fmt.Println("DefraDB container removed")
				return nil
			}),
		},
	)

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Show DefraDB container logs",
		RunE: withManager(func(ctx context.Context, mgr *defra.DockerManager) error {
			logs, err := mgr.Logs(ctx, logsTail)
			if err != nil {
				return err
			}
			fmt.Print(logs)
			return nil
		}),
	}
	logsCmd.Flags().StringVar(&logsTail, "tail", "100", "Number of lines to show from the end")

	waitCmd := &cobra.Command{
		Use:   "wait",
		Short: "Block until DefraDB accepts connections",
		RunE: withManager(func(ctx context.Context, mgr *defra.DockerManager) error {
			if err := mgr.WaitReady(ctx, waitTimeout); err != nil {
				return fmt.Errorf("DefraDB not ready: %w", err)
			}
			fmt.Println("DefraDB is ready")
			return nil
		}),
	}
	waitCmd.Flags().DurationVar(&waitTimeout, "timeout", 30*time.Second, "How long to wait")

	defraCmd.AddCommand(logsCmd, waitCmd)
	rootCmd.AddCommand(defraCmd)
}

func printDefraStatus(ctx context.Context, mgr *defra.DockerManager) error {
	status, err := mgr.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	fmt.Printf("Status: %s\n", status)
	switch status {
	case defra.StatusRunning:
		fmt.Printf("URL:    %s\n", mgr.URL())
		if err := defra.NewClient(mgr.URL()).HealthCheck(ctx); err != nil {
			fmt.Printf("Health: unhealthy (%v)\n", err)
		} else {
			fmt.Println("Health: healthy")
		}
	case defra.StatusStopped, defra.StatusNotFound:
		fmt.Println("Run 'folio defra start' to start it.")
	}
	return nil
}

// withManager adapts fn to a cobra RunE with a DockerManager built from
// the config file.
func withManager(fn func(context.Context, *defra.DockerManager) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}
		mgr, err := getDockerManager(h)
		if err != nil {
			return err
		}
		defer mgr.Close()
		return fn(cmd.Context(), mgr)
	}
}

// getDockerManager creates a DockerManager from the config file's defra
// section.
func getDockerManager(h *home.Dir) (*defra.DockerManager, error) {
	cfgMgr, err := loadConfig(h)
	if err != nil {
		return nil, err
	}
	cfg := cfgMgr.Get().Defra
	if cfg.URL != "" {
		return nil, fmt.Errorf("defra.url is set to %s; that node is not managed by folio", cfg.URL)
	}

	dataPath := h.DefraPath(cfg.DataPath)
	if err := home.EnsureDir(dataPath); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return defra.NewDockerManager(defra.DockerConfig{
		ContainerName: cfg.ContainerName,
		Image:         cfg.Image,
		HostPort:      cfg.Port,
		DataPath:      dataPath,
	})
}
