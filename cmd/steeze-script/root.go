package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/joeydtaylor/steeze-script/pkg/manifest"
	"github.com/joeydtaylor/steeze-script/pkg/script"
	"github.com/joeydtaylor/steeze-script/pkg/serverfx"
	"github.com/joeydtaylor/steeze-script/pkg/wasmhandler"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

const envPrefix = "STEEZE"

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func newRootCmd() *cobra.Command { return buildRootCmd(newViper()) }

// buildRootCmd binds every flag into v, so flags win over STEEZE_* env vars
// and both win over the manifest.
func buildRootCmd(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:           "steeze-script",
		Short:         "HTTP server whose routes live in a hot-reloaded Lua script",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringP("config", "c", "", "manifest file (TOML)")
	pf.StringP("script", "f", "", "route script, overrides server.script")
	_ = v.BindPFlag("config", pf.Lookup("config"))
	_ = v.BindPFlag("script", pf.Lookup("script"))

	root.AddCommand(newServeCmd(v), newCheckCmd(v))
	return root
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the script's routes and reload them on change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), fx.New(serverfx.Module(cfg, serverfx.WithService("steeze-script"))))
		},
	}
	f := cmd.Flags()
	f.StringP("listen", "l", "", "listen address, overrides server.listen")
	f.String("static", "", "directory served under server.static_prefix")
	f.String("watch", "", "fsnotify, poll or off, overrides watch.mode")
	_ = v.BindPFlag("listen", f.Lookup("listen"))
	_ = v.BindPFlag("static", f.Lookup("static"))
	_ = v.BindPFlag("watch", f.Lookup("watch"))
	return cmd
}

// newCheckCmd loads the manifest and script once and lists the routes
// without serving them.
func newCheckCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the manifest and script and list the routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			modules := wasmhandler.NewModuleCache(ctx)
			defer modules.Close(ctx)

			native, err := cfg.NativeRoutes(ctx, modules, nil)
			if err != nil {
				return err
			}
			c, err := script.Open(ctx, &script.LuaLoader{Path: cfg.Server.Script, Native: native})
			if err != nil {
				return err
			}
			defer c.Close()

			var paths []string
			_ = c.WithExclusiveAccess(func(s *script.Session) error {
				paths = s.CurrentRouteTable().Paths()
				return nil
			})
			sort.Strings(paths)
			out := cmd.OutOrStdout()
			for _, p := range paths {
				fmt.Fprintln(out, p)
			}
			return nil
		},
	}
}

// loadConfig reads the manifest named by --config / STEEZE_CONFIG, then
// applies flag and STEEZE_* overrides on top.
func loadConfig(v *viper.Viper) (manifest.Config, error) {
	cfg, err := manifest.Load(v.GetString("config"))
	if err != nil {
		return manifest.Config{}, fmt.Errorf("manifest: %w", err)
	}
	if s := v.GetString("script"); s != "" {
		cfg.Server.Script = s
	}
	if s := v.GetString("listen"); s != "" {
		cfg.Server.Listen = s
	}
	if s := v.GetString("static"); s != "" {
		cfg.Server.StaticDir = s
	}
	if s := v.GetString("watch"); s != "" {
		cfg.Watch.Mode = manifest.WatchMode(s)
	}
	if err := cfg.Validate(); err != nil {
		return manifest.Config{}, fmt.Errorf("manifest: %w", err)
	}
	return cfg, nil
}

// run starts app and blocks until ctx ends or fx receives a signal.
func run(ctx context.Context, app *fx.App) error {
	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	var code int
	select {
	case <-ctx.Done():
	case sig := <-app.Wait():
		code = sig.ExitCode
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("exit code %d", code)
	}
	return nil
}
