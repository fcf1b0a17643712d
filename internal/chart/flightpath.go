// Package chart renders debug visualisations of estimated trajectories using
// go-echarts. These are debugging-only pages, not part of the simulator UI.
package chart

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/fairway-data/launch.monitor/internal/ballistics"
)

// RenderFlightPath writes an HTML page with side-view and top-down line
// charts of the trajectory's flight samples.
func RenderFlightPath(w io.Writer, traj *ballistics.Trajectory) error {
	if traj == nil || len(traj.FlightSamples) == 0 {
		return fmt.Errorf("no flight samples to render")
	}

	xs := make([]string, 0, len(traj.FlightSamples))
	heights := make([]opts.LineData, 0, len(traj.FlightSamples))
	offsets := make([]opts.LineData, 0, len(traj.FlightSamples))
	for _, s := range traj.FlightSamples {
		xs = append(xs, fmt.Sprintf("%.0f", s.X))
		heights = append(heights, opts.LineData{Value: s.Z})
		offsets = append(offsets, opts.LineData{Value: s.Y})
	}

	subtitle := fmt.Sprintf("carry=%.1fyd apex=%.1fyd offset=%.1fyd launch=%.1f° speed=%.1fm/s",
		traj.CarryDistanceYards, traj.ApexHeightYards, traj.LandingOffsetYards,
		traj.LaunchAngleDeg, traj.BallSpeedMps)

	side := charts.NewLine()
	side.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Flight Path", Theme: "dark", Width: "900px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Flight Path (side view)", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Downrange (yd)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Height (yd)", NameLocation: "middle", NameGap: 30}),
	)
	side.SetXAxis(xs).AddSeries("height", heights,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	top := charts.NewLine()
	top.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "900px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Flight Path (top down)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Downrange (yd)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Offset (yd)", NameLocation: "middle", NameGap: 30}),
	)
	top.SetXAxis(xs).AddSeries("offset", offsets,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	page := components.NewPage()
	page.AddCharts(side, top)
	return page.Render(w)
}
