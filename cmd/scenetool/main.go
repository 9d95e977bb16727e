// scenetool inspects, converts and watches scene sections.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Faultbox/scenekit/internal/assets"
	"github.com/Faultbox/scenekit/internal/config"
	"github.com/Faultbox/scenekit/internal/engine/material"
	"github.com/Faultbox/scenekit/internal/loader"
	"github.com/Faultbox/scenekit/internal/logger"
)

// app holds what every subcommand shares once flags are parsed.
type app struct {
	flags  *config.Flags
	cfg    *config.Config
	assets *assets.Manager
	loader *loader.Loader
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "scenetool",
		Short:         "Scene section utility",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.assets != nil {
				a.assets.Close()
			}
			logger.Sync()
		},
	}
	a.flags = config.BindFlags(root.PersistentFlags())

	root.AddCommand(
		newInfoCmd(a),
		newExportCmd(a),
		newGLTFCmd(a),
		newColliderCmd(a),
		newWatchCmd(a),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.flags)
	if err != nil {
		return err
	}
	a.cfg = cfg

	opts := logger.Options{Level: cfg.Logging.Level, JSON: cfg.Logging.JSON, Console: true}
	if cfg.Logging.LogFile != "" {
		opts.File = logger.DefaultFileConfig(cfg.Logging.LogFile)
	}
	if err := logger.InitWithOptions(opts); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	a.assets = assets.NewManager()
	if err := a.assets.AddDir(cfg.Assets.BasePath); err != nil {
		return err
	}
	for _, dir := range cfg.Assets.Overlays {
		if err := a.assets.AddDir(dir); err != nil {
			return err
		}
	}

	a.loader = loader.New(a.assets, loader.Options{
		Compression:        cfg.Assets.Compression,
		TextureConcurrency: cfg.Loader.TextureConcurrency,
		FetchTimeout:       cfg.Loader.FetchTimeout.Duration,
		Validate:           cfg.Loader.Validate,
	})
	a.loader.Init(loader.NewHeadlessRenderer(), "")
	logger.Debug("scenetool ready", zap.String("assets", cfg.Assets.BasePath), zap.Strings("overlays", cfg.Assets.Overlays))
	return nil
}

// load builds a scene with every document setting applied.
func (a *app) load(ctx context.Context, id string) (*loader.SceneWrapper, error) {
	w := loader.NewSceneWrapper(id, a.loader, material.NewLibrary(), loader.WrapperOptions{
		ApplyHDRI:              true,
		ApplyBackgroundTexture: true,
		ApplyFog:               true,
	})
	err := <-w.Load(ctx, nil, func(p float64) {
		logger.Debug("loading", zap.String("scene", id), zap.Float64("progress", p))
	})
	if err != nil {
		return nil, err
	}
	settings := w.Document().Settings
	a.loader.ApplyToneMapping(settings)
	a.loader.ApplyShadowSettings(settings, w.Scene)
	return w, nil
}
