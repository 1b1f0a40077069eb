// Command frontend replays a recorded sensor log through the NDT odometer
// and extracts keyframes into a map-data directory.
package main

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/gaoxiang12/slam-in-ad-en/config"
	"github.com/gaoxiang12/slam-in-ad-en/frontend"
	"github.com/gaoxiang12/slam-in-ad-en/keyframe"
	"github.com/gaoxiang12/slam-in-ad-en/sensor"
)

var logger = golog.NewDevelopmentLogger("frontend")

// Arguments for the command.
type Arguments struct {
	Log    string `flag:"log,usage=recorded sensor log"`
	OutDir string `flag:"out,default=map_data,usage=keyframe output directory"`
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
	if argsParsed.Log == "" {
		return errors.New("-log is required")
	}
	cfg, err := config.LoadMapping(argsParsed.Config)
	if err != nil {
		return err
	}

	msgs, err := sensor.ReadLog(argsParsed.Log)
	if err != nil {
		return err
	}
	store, err := keyframe.NewStore(argsParsed.OutDir, logger)
	if err != nil {
		return err
	}
	est := frontend.NewNDTOdometer(frontend.DefaultOdometerConfig(), logger)
	return frontend.Run(ctx, sensor.NewSliceSource(msgs), est, store, cfg.Frontend(), logger)
}
