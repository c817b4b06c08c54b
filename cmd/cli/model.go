package cli

import (
	"context"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/turtacn/ubi/internal/infrastructure/model"
	ubigrpc "github.com/turtacn/ubi/internal/interfaces/grpc"
	"github.com/turtacn/ubi/pkg/errors"
	"github.com/turtacn/ubi/pkg/logger"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Risk model utilities",
	}
	cmd.AddCommand(newModelServeCmd())
	return cmd
}

func newModelServeCmd() *cobra.Command {
	var addr, weights, version string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a linear risk model over gRPC for scoring replicas (model.kind=grpc)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			if weights == "" {
				weights = cfg.Model.WeightsFile
			}
			if weights == "" {
				return errors.ErrInvalidInput("no weights: pass --weights or set model.weights_file")
			}
			if version == "" {
				version = cfg.Model.Version
			}
			m, err := model.LoadLinearModel(weights, version)
			if err != nil {
				return err
			}

			lis, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			server := ubigrpc.NewRiskModelGRPCServer(m, log)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				server.GracefulStop()
			}()

			log.Info(ctx, "Serving risk model",
				logger.String("address", lis.Addr().String()),
				logger.String("model_version", m.Version()),
			)
			return server.Serve(lis)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9090", "listen address")
	cmd.Flags().StringVar(&weights, "weights", "", "weights file (default: model.weights_file)")
	cmd.Flags().StringVar(&version, "version", "", "override the model version reported to clients")
	return cmd
}
