package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mikalv/Pure64/internal/diskmanager"
	"github.com/mikalv/Pure64/internal/webui"
)

func serveCmd() *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "serve the image over HTTP and a USB mass storage gadget",
		Long: `Serve the web UI and HTTP API for the image. Unless the config selects the
no-op gadget, the image is also exported as a USB mass storage device so an
attached machine can boot from it. A missing image is created with mkfs first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			boot, err := cfg.LoadBootImages()
			if err != nil {
				return err
			}
			imgOpts, err := cfg.ImageOptions()
			if err != nil {
				return err
			}
			diskPath := cfg.Image.Path
			if _, err := os.Stat(diskPath); os.IsNotExist(err) {
				log.Infof("%s does not exist, creating an empty image", diskPath)
				if _, err := diskmanager.Format(diskPath, boot, imgOpts); err != nil {
					return err
				}
			}

			gadgetCfg, err := cfg.GadgetConfig()
			if err != nil {
				return err
			}
			gadget := diskmanager.NewGadget(gadgetCfg, diskPath, cfg.USBGadget.UseNoOp)
			dm, err := diskmanager.New(diskmanager.Config{
				DiskPath: diskPath,
				Boot:     boot,
				Image:    imgOpts,
			}, gadget)
			if err != nil {
				return fmt.Errorf("failed to initialize disk manager: %w", err)
			}
			defer dm.Close()
			log.Infof("Disk manager initialized with disk: %s", diskPath)

			webHandler, err := webui.New(dm, cfg.Upload.MaxSizeMB*1024*1024)
			if err != nil {
				return fmt.Errorf("failed to initialize web UI: %w", err)
			}
			handler := webui.NewServerHandler(webHandler, cors.Options{
				AllowedOrigins:   cfg.Server.CORS.AllowedOrigins,
				AllowedMethods:   cfg.Server.CORS.AllowedMethods,
				AllowedHeaders:   cfg.Server.CORS.AllowedHeaders,
				AllowCredentials: cfg.Server.CORS.AllowCredentials,
			})

			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			srv := &http.Server{
				Addr:         addr,
				Handler:      handler,
				ReadTimeout:  time.Second * time.Duration(cfg.Server.ReadTimeout),
				WriteTimeout: time.Second * time.Duration(cfg.Server.WriteTimeout),
				IdleTimeout:  time.Second * time.Duration(cfg.Server.IdleTimeout),
			}

			errCh := make(chan error, 1)
			go func() {
				log.Infof("Starting server at %s", addr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
				close(errCh)
			}()

			// Wait for interrupt signal to gracefully shutdown the server
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-quit:
			case err, ok := <-errCh:
				if ok {
					return fmt.Errorf("failed to start server: %w", err)
				}
			}

			log.Infof("Shutting down server...")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.Warnf("Server forced to shutdown: %v", err)
			}
			log.Infof("Server exited")
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "Address to listen on, overrides the config file")
	cmd.Flags().IntVar(&port, "port", 8080, "Port to listen on, overrides the config file")

	return cmd
}
