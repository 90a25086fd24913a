package chart

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/newthinker/candlescope/internal/core"
)

const (
	colorBull       = "#10b981"
	colorBear       = "#ef4444"
	colorBackground = "#ffffff"
	colorText       = "#374151"

	chartWidth   = "100%"
	priceHeight  = "420px"
	volumeHeight = "160px"
)

// Input is everything needed to draw one symbol.
type Input struct {
	Symbol  string
	Candles []core.Candle
	Layout  Layout
}

// Render writes a self-contained HTML chart page: candlesticks with the
// layout annotations as mark points, and volume bars below.
func Render(w io.Writer, in Input) error {
	if len(in.Candles) == 0 {
		return core.WrapError(core.ErrNoData, fmt.Errorf("no candles to chart for %s", in.Symbol))
	}

	xAxis := make([]string, len(in.Candles))
	for i, c := range in.Candles {
		xAxis[i] = c.Timestamp
	}

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(priceChart(in, xAxis), volumeChart(in.Candles, xAxis))

	// Render into a buffer so a failure never leaves half a page on w.
	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("rendering chart for %s: %w", in.Symbol, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

func priceChart(in Input, xAxis []string) *charts.Kline {
	title := in.Layout.Title
	if title == "" {
		title = strings.ToUpper(in.Symbol)
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:           chartWidth,
			Height:          priceHeight,
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      title,
			Left:       "left",
			TitleStyle: &opts.TextStyle{Color: colorText, FontSize: 16},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			SplitLine: &opts.SplitLine{Show: opts.Bool(true)},
		}),
	)

	data := make([]opts.KlineData, len(in.Candles))
	for i, c := range in.Candles {
		// echarts orders candlestick values open, close, low, high.
		data[i] = opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}}
	}

	seriesOpts := []charts.SeriesOpts{
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	}
	for _, a := range in.Layout.Annotations {
		seriesOpts = append(seriesOpts, charts.WithMarkPointNameCoordItemOpts(markPoint(a)))
	}

	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", data, seriesOpts...)
	return kline
}

func markPoint(a Annotation) opts.MarkPointNameCoordItem {
	return opts.MarkPointNameCoordItem{
		Name:       a.Label,
		Coordinate: []interface{}{a.X, a.Y},
		Value:      a.Label,
		Symbol:     "pin",
		SymbolSize: 40,
		ItemStyle:  &opts.ItemStyle{Color: a.Color},
	}
}

func volumeChart(candles []core.Candle, xAxis []string) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:           chartWidth,
			Height:          volumeHeight,
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{Title: "Volume", Left: "left", TitleStyle: &opts.TextStyle{Color: colorText}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Show: opts.Bool(false)}}),
	)

	vols := make([]opts.BarData, len(candles))
	for i, c := range candles {
		color := colorBear
		if c.Bullish() {
			color = colorBull
		}
		vols[i] = opts.BarData{
			Value: c.Volume,
			ItemStyle: &opts.ItemStyle{
				Color:   color,
				Opacity: opts.Float(0.6),
			},
		}
	}
	bar.SetXAxis(xAxis)
	bar.AddSeries("Volume", vols)
	return bar
}
