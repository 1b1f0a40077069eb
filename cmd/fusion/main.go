// Command fusion localizes a recorded sensor log against an exported tile
// map and writes the fused trajectory.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/gaoxiang12/slam-in-ad-en/config"
	"github.com/gaoxiang12/slam-in-ad-en/fusion"
	"github.com/gaoxiang12/slam-in-ad-en/maptile"
	"github.com/gaoxiang12/slam-in-ad-en/sensor"
)

var logger = golog.NewDevelopmentLogger("fusion")

// Arguments for the command.
type Arguments struct {
	MapDir string `flag:"map,default=map_tiles,usage=tile directory"`
	Log    string `flag:"log,usage=recorded sensor log"`
	Out    string `flag:"out,default=fused.txt,usage=fused trajectory output"`
	Config string `flag:"config,usage=fusion config JSON"`
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
	cfg, err := config.LoadFusion(argsParsed.Config)
	if err != nil {
		return err
	}

	tiles, err := maptile.OpenTileSet(argsParsed.MapDir, logger)
	if err != nil {
		return err
	}
	msgs, err := sensor.ReadLog(argsParsed.Log)
	if err != nil {
		return err
	}
	loc := fusion.NewLocalizer(tiles, cfg.Localizer(), logger)

	out, err := os.Create(argsParsed.Out)
	if err != nil {
		return errors.Wrap(err, "cannot create trajectory output")
	}
	w := bufio.NewWriter(out)

	poses := 0
	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			break
		}
		switch m := msg.(type) {
		case sensor.IMU:
			loc.OnIMU(m)
		case sensor.FixMessage:
			loc.OnFix(m.Fix)
		case sensor.Scan:
			pose, ok, err := loc.OnScan(ctx, m)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			tr := pose.Point()
			q := pose.Rotation()
			fmt.Fprintf(w, "%.9f %.9f %.9f %.9f %.9f %.9f %.9f %.9f\n",
				m.Time, tr.X, tr.Y, tr.Z, q.Real, q.Imag, q.Jmag, q.Kmag)
			poses++
		}
	}
	if err := w.Flush(); err != nil {
		out.Close() //nolint:errcheck,gosec
		return err
	}
	logger.Infow("fusion finished", "poses", poses, "out", argsParsed.Out)
	return out.Close()
}
