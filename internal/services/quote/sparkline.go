package quote

import (
	"bytes"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/wofare/edgarwatch/internal/models"
)

// RenderSparklinePNG renders a quote's sparkline as a compact PNG for the
// overview read path. Green when the series closed up, red when down.
func RenderSparklinePNG(quote *models.Quote) ([]byte, error) {
	if quote == nil || len(quote.Sparkline) < 2 {
		return nil, fmt.Errorf("sparkline requires at least 2 points")
	}

	xs := make([]float64, len(quote.Sparkline))
	for i := range quote.Sparkline {
		xs[i] = float64(i)
	}

	color := drawing.Color{R: 0x2e, G: 0xa0, B: 0x43, A: 0xff}
	if quote.Sparkline[len(quote.Sparkline)-1] < quote.Sparkline[0] {
		color = drawing.Color{R: 0xd6, G: 0x3a, B: 0x3a, A: 0xff}
	}

	graph := chart.Chart{
		Width:  240,
		Height: 60,
		XAxis:  chart.XAxis{Style: chart.Hidden()},
		YAxis:  chart.YAxis{Style: chart.Hidden()},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Style: chart.Style{
					StrokeColor: color,
					StrokeWidth: 1.5,
				},
				XValues: xs,
				YValues: quote.Sparkline,
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("failed to render sparkline: %w", err)
	}
	return buf.Bytes(), nil
}
