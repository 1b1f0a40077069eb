// Command optimize runs one stage of the pose-graph optimization over a
// map-data directory: stage 1 fuses odometry with absolute fixes, stage 2
// adds the accepted loop closures and exports the final graph.
package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/gaoxiang12/slam-in-ad-en/config"
	"github.com/gaoxiang12/slam-in-ad-en/keyframe"
	"github.com/gaoxiang12/slam-in-ad-en/loopclosure"
	"github.com/gaoxiang12/slam-in-ad-en/posegraph"
)

var logger = golog.NewDevelopmentLogger("optimize")

// Arguments for the command.
type Arguments struct {
	Dir    string `flag:"dir,default=map_data,usage=keyframe directory"`
	Stage  int    `flag:"stage,default=1,usage=optimization stage (1 or 2)"`
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

	switch argsParsed.Stage {
	case 1:
		outliers, err := posegraph.RunStage1(store, cfg.Stage(), logger)
		if err != nil {
			return err
		}
		logger.Infow("stage 1 done", "outlierFixes", outliers)
	case 2:
		loopsPath := filepath.Join(argsParsed.Dir, loopclosure.LoopsFileName)
		matches, err := loopclosure.ReadLoops(loopsPath)
		if err != nil {
			if !os.IsNotExist(errors.Cause(err)) {
				return err
			}
			logger.Warnw("no loops file, optimizing without loop closures", "path", loopsPath)
		}
		problem, err := posegraph.RunStage2(store, loopclosure.Constraints(matches), cfg.Stage(), logger)
		if err != nil {
			return err
		}
		g2oPath := filepath.Join(argsParsed.Dir, "after.g2o")
		if err := posegraph.ExportG2O(problem, g2oPath); err != nil {
			return err
		}
		logger.Infow("stage 2 done", "loops", len(matches), "g2o", g2oPath)
	default:
		return errors.Errorf("unknown stage %d", argsParsed.Stage)
	}
	return store.WriteTable()
}
