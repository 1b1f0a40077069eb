// Command loopclosure detects revisits in a stage-1 optimized map-data
// directory, validates them by registration, and writes the accepted
// matches for stage 2.
package main

import (
	"context"
	"path/filepath"

	"github.com/edaniels/golog"
	goutils "go.viam.com/utils"

	"github.com/gaoxiang12/slam-in-ad-en/config"
	"github.com/gaoxiang12/slam-in-ad-en/keyframe"
	"github.com/gaoxiang12/slam-in-ad-en/loopclosure"
)

var logger = golog.NewDevelopmentLogger("loopclosure")

// Arguments for the command.
type Arguments struct {
	Dir    string `flag:"dir,default=map_data,usage=keyframe directory"`
	Config string `flag:"config,usage=mapping config JSON"`
}

func main() {
	goutils.ContextualMain(mainWithArgs, logger)
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	var argsParsed Arguments
	if err := goutils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	cfg, err := config.LoadMapping(argsParsed.Config)
	if err != nil {
		return err
	}
	store, err := keyframe.OpenStore(argsParsed.Dir, logger)
	if err != nil {
		return err
	}

	loopCfg := cfg.Loop()
	cands := loopclosure.Detect(store, loopCfg)
	logger.Infow("candidates detected", "count", len(cands))

	matches, err := loopclosure.Register(ctx, store, cands, loopCfg, logger)
	if err != nil {
		return err
	}
	return loopclosure.WriteLoops(matches, filepath.Join(argsParsed.Dir, loopclosure.LoopsFileName))
}
