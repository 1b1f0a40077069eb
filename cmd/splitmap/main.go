// Command splitmap exports a stage-2 optimized map-data directory as a
// grid of loadable map tiles.
package main

import (
	"context"

	"github.com/edaniels/golog"
	goutils "go.viam.com/utils"

	"github.com/gaoxiang12/slam-in-ad-en/config"
	"github.com/gaoxiang12/slam-in-ad-en/keyframe"
	"github.com/gaoxiang12/slam-in-ad-en/maptile"
)

var logger = golog.NewDevelopmentLogger("splitmap")

// Arguments for the command.
type Arguments struct {
	Dir    string `flag:"dir,default=map_data,usage=keyframe directory"`
	OutDir string `flag:"out,default=map_tiles,usage=tile output directory"`
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
	return maptile.Export(ctx, store, argsParsed.OutDir, cfg.Export(), logger)
}
