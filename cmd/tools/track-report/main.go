// Command track-report renders a track store as a trajectory plot (PNG) and
// an object count chart (HTML).
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/objectfusion/internal/trackstore"
)

// maxPlottedTracks bounds the legend of the trajectory plot.
const maxPlottedTracks = 40

func main() {
	dbPath := flag.String("db", "tracks.db", "Track store to report on")
	outDir := flag.String("out", ".", "Output directory")
	from := flag.String("from", "", "Window start, RFC 3339 (default: oldest snapshot)")
	to := flag.String("to", "", "Window end, RFC 3339 (default: just after the newest snapshot)")
	bucket := flag.Duration("bucket", time.Second, "Count chart bucket width")
	flag.Parse()

	store, err := trackstore.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open track store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	start, end, err := window(ctx, store, *from, *to)
	if err != nil {
		log.Fatal(err)
	}
	files, err := report(ctx, store, start, end, *bucket, *outDir)
	if err != nil {
		log.Fatalf("report failed: %v", err)
	}
	for _, f := range files {
		fmt.Println(f)
	}
}

// window resolves the report interval, defaulting to everything stored.
func window(ctx context.Context, store *trackstore.Store, from, to string) (time.Time, time.Time, error) {
	first, last, ok, err := store.TimeSpan(ctx)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !ok && (from == "" || to == "") {
		return time.Time{}, time.Time{}, fmt.Errorf("store %s holds no confirmed snapshots", store.Path())
	}
	start, end := first, last.Add(time.Nanosecond)
	if from != "" {
		if start, err = time.Parse(time.RFC3339Nano, from); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -from: %w", err)
		}
	}
	if to != "" {
		if end, err = time.Parse(time.RFC3339Nano, to); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -to: %w", err)
		}
	}
	return start, end, nil
}

// report writes trajectories.png and counts.html to outDir and returns
// their paths.
func report(ctx context.Context, store *trackstore.Store, from, to time.Time, bucket time.Duration, outDir string) ([]string, error) {
	points, err := store.TrackPoints(ctx, from, to)
	if err != nil {
		return nil, err
	}
	counts, err := store.TrackCounts(ctx, from, to, bucket)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	png := filepath.Join(outDir, "trajectories.png")
	if err := renderTrajectories(points, png); err != nil {
		return nil, err
	}
	html := filepath.Join(outDir, "counts.html")
	if err := renderCounts(counts, from, to, html); err != nil {
		return nil, err
	}
	return []string{png, html}, nil
}

// renderTrajectories draws one line per track in world coordinates. points
// must be ordered by track then time.
func renderTrajectories(points []trackstore.TrackPoint, path string) error {
	p := plot.New()
	p.Title.Text = "Track trajectories"
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(plotter.NewGrid())

	tracks := 0
	for i := 0; i < len(points); {
		j := i
		for j < len(points) && points[j].TrackID == points[i].TrackID {
			j++
		}
		if tracks < maxPlottedTracks {
			xys := make(plotter.XYs, 0, j-i)
			for _, pt := range points[i:j] {
				xys = append(xys, plotter.XY{X: pt.X, Y: pt.Y})
			}
			line, err := plotter.NewLine(xys)
			if err != nil {
				return fmt.Errorf("track %d: %w", points[i].TrackID, err)
			}
			line.Width = vg.Points(1.5)
			line.Color = plotutil.Color(tracks)
			p.Add(line)
			p.Legend.Add(fmt.Sprintf("#%d %s", points[i].TrackID, points[i].Label), line)
		}
		tracks++
		i = j
	}
	if tracks > maxPlottedTracks {
		p.Title.Text = fmt.Sprintf("Track trajectories (first %d of %d)", maxPlottedTracks, tracks)
	}
	if tracks == 0 {
		// An empty plot still renders; mark the origin so the axes have a range.
		origin, err := plotter.NewScatter(plotter.XYs{{X: 0, Y: 0}})
		if err != nil {
			return err
		}
		origin.Color = color.Gray{Y: 128}
		p.Add(origin)
	}
	p.Legend.Top = true
	p.Legend.Left = false

	return p.Save(10*vg.Inch, 10*vg.Inch, path)
}

// renderCounts writes a line chart of objects and distinct tracks per bucket.
func renderCounts(counts []trackstore.CountBucket, from, to time.Time, path string) error {
	x := make([]string, len(counts))
	objects := make([]opts.LineData, len(counts))
	tracks := make([]opts.LineData, len(counts))
	for i, c := range counts {
		x[i] = c.Start.Format("15:04:05")
		objects[i] = opts.LineData{Value: c.MaxObjects}
		tracks[i] = opts.LineData{Value: c.Tracks}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Tracked objects", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Tracked objects",
			Subtitle: fmt.Sprintf("%s to %s", from.Format(time.RFC3339), to.Format(time.RFC3339)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "count"}),
	)
	line.SetXAxis(x).
		AddSeries("max confirmed objects", objects).
		AddSeries("distinct tracks", tracks)

	page := components.NewPage()
	page.AddCharts(line)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("render counts chart: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
