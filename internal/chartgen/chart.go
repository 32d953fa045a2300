package chartgen

import (
	"bytes"
	"errors"
	"fmt"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/dongkoony/aws-cost-slack-reporter/internal/billing"
)

// Artifact is a rendered trend chart. Created per invocation, never
// persisted, discarded after the delivery attempt.
type Artifact struct {
	PNG    []byte
	Width  int
	Height int
	Series []billing.DailyCost
}

// Renderer turns the month's daily spend series into a PNG line chart.
// Styling is fixed so identical input renders identical bytes.
type Renderer struct {
	width  int
	height int
}

// NewRenderer constructs a renderer with the given canvas size.
func NewRenderer(width, height int) *Renderer {
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 720
	}
	return &Renderer{width: width, height: height}
}

// Render draws the daily USD spend trend. The series is plotted in the
// account's native currency; conversion only applies to the textual report.
func (r *Renderer) Render(series []billing.DailyCost) (*Artifact, error) {
	if len(series) == 0 {
		return nil, errors.New("empty daily series")
	}

	x := make([]float64, len(series))
	y := make([]float64, len(series))
	ticks := make([]chart.Tick, 0, len(series))
	for i, point := range series {
		day := float64(point.Date.Day())
		x[i] = day
		y[i] = point.Amount.InexactFloat64()
		ticks = append(ticks, chart.Tick{Value: day, Label: fmt.Sprintf("%d", point.Date.Day())})
	}

	usdFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "$%.2f")
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("AWS Daily Spend - %s", series[0].Date.Format("January 2006")),
		Width:  r.width,
		Height: r.height,
		XAxis: chart.XAxis{
			Name:  "Day of Month",
			Ticks: ticks,
		},
		YAxis: chart.YAxis{
			Name:           "Cost (USD)",
			ValueFormatter: usdFormatter,
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Daily Cost",
				XValues: x,
				YValues: y,
				Style: chart.Style{
					StrokeColor: drawing.ColorBlue,
					StrokeWidth: 2.0,
					FillColor:   drawing.ColorBlue.WithAlpha(40),
				},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}

	return &Artifact{
		PNG:    buf.Bytes(),
		Width:  r.width,
		Height: r.height,
		Series: series,
	}, nil
}
