package cli

import (
	"fmt"
	"log"
	"os"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"sttstudio/internal/config"
	"sttstudio/internal/svc"
	"sttstudio/pkg/logger"
)

var (
	installCmd = &cobra.Command{
		Use:   "install",
		Short: "Install the studio as a background OS service",
		Run:   runInstall,
	}

	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the installed studio service",
		Run:   runStart,
	}

	stopCmd = &cobra.Command{
		Use:   "stop",
		Short: "Stop the installed studio service",
		Run:   runStop,
	}

	uninstallCmd = &cobra.Command{
		Use:   "uninstall",
		Short: "Uninstall the studio service",
		Run:   runUninstall,
	}
)

func newService() (service.Service, error) {
	ex, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable path: %w", err)
	}
	cfg := config.Load()
	return service.New(svc.NewProgram(svc.New(cfg)), svc.Config(ex))
}

// serviceRunCmd is the hidden entrypoint the service manager execs; it
// drives the same Studio.Run lifecycle as `serve`, just through
// kardianos/service's Start/Stop hooks instead of a foreground signal loop.
var serviceRunCmd = &cobra.Command{
	Use:    "service-run",
	Hidden: true,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		logger.Init(os.Getenv("LOG_LEVEL"))

		prg := svc.NewProgram(svc.New(cfg))
		ex, err := os.Executable()
		if err != nil {
			log.Fatalf("resolve executable path: %v", err)
		}
		s, err := service.New(prg, svc.Config(ex))
		if err != nil {
			log.Fatalf("create service: %v", err)
		}
		if err := s.Run(); err != nil {
			log.Fatalf("service run: %v", err)
		}
	},
}

func runInstall(cmd *cobra.Command, args []string) {
	s, err := newService()
	if err != nil {
		log.Fatal(err)
	}
	if err := s.Install(); err != nil {
		log.Fatalf("install service: %v", err)
	}
	fmt.Println("Service installed successfully.")
}

func runStart(cmd *cobra.Command, args []string) {
	s, err := newService()
	if err != nil {
		log.Fatal(err)
	}
	if err := s.Start(); err != nil {
		log.Fatalf("start service: %v", err)
	}
	fmt.Println("Service started.")
}

func runStop(cmd *cobra.Command, args []string) {
	s, err := newService()
	if err != nil {
		log.Fatal(err)
	}
	if err := s.Stop(); err != nil {
		log.Fatalf("stop service: %v", err)
	}
	fmt.Println("Service stopped.")
}

func runUninstall(cmd *cobra.Command, args []string) {
	s, err := newService()
	if err != nil {
		log.Fatal(err)
	}
	if err := s.Uninstall(); err != nil {
		log.Fatalf("uninstall service: %v", err)
	}
	fmt.Println("Service uninstalled.")
}
