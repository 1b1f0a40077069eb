// Command mergemap reassembles an exported tile directory into a single
// point-cloud file.
package main

import (
	"context"

	"github.com/edaniels/golog"
	goutils "go.viam.com/utils"

	"github.com/gaoxiang12/slam-in-ad-en/maptile"
)

var logger = golog.NewDevelopmentLogger("mergemap")

// Arguments for the command.
type Arguments struct {
	MapDir string `flag:"map,default=map_tiles,usage=tile directory"`
	Out    string `flag:"out,default=merged_map.pcd,usage=output PCD file"`
}

func main() {
	goutils.ContextualMain(mainWithArgs, logger)
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	var argsParsed Arguments
	if err := goutils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	return maptile.Merge(argsParsed.MapDir, argsParsed.Out, logger)
}
