package dashboard

import (
	"fmt"

	"dashboard/internal/engine"
	"dashboard/internal/models"
)

const (
	chartPadding = "16px 32px 16px 16px"

	MapPlaceholder   = "map placeholder"
	TablePlaceholder = "Table placeholder"
	SelectPrompt     = "Please select an indicator"
)

// barLayout holds the orientation-dependent settings of the ranks chart.
type barLayout struct {
	graphType  models.GraphType
	height     int
	leftMargin int
	truncateBy int
}

var barLayouts = map[models.Orientation]barLayout{
	models.Horizontal: {graphType: models.HorizontalBarChart, height: 1200, leftMargin: 180, truncateBy: 24},
	models.Vertical:   {graphType: models.VerticalBarChart, height: 600, leftMargin: 32, truncateBy: 3},
}

// frame is the state a body is rendered from.
type frame struct {
	tab         models.Tab
	indicator   *models.Option
	orientation models.Orientation
	profile     Profile
	table       *engine.Table
	dataset     models.LoadState
}

func renderBody(f frame) models.Body {
	if f.table == nil {
		if f.dataset.Status == models.StatusError {
			return models.Body{Kind: models.BodyError, Message: "Dataset could not be loaded: " + f.dataset.Error}
		}
		return models.Body{Kind: models.BodyLoading}
	}

	if f.tab.Charted() {
		if f.indicator == nil {
			if f.profile.PromptUnselected {
				return models.Body{Kind: models.BodyPrompt, Message: SelectPrompt}
			}
			return models.Body{Kind: models.BodyEmpty}
		}
		return models.Body{Kind: models.BodyChart, Chart: chartProps(f.tab, *f.indicator, f.orientation, f.table)}
	}

	if f.indicator == nil && f.profile.PlaceholdersNeedIndicator {
		return models.Body{Kind: models.BodyEmpty}
	}
	msg := MapPlaceholder
	if f.tab == models.TabTable {
		msg = TablePlaceholder
	}
	return models.Body{Kind: models.BodyPlaceholder, Message: msg}
}

// chartProps builds the visualization library props for a chart tab. The
// mapping is fixed per tab; only the ranks chart depends on orientation.
func chartProps(tab models.Tab, ind models.Option, o models.Orientation, t *engine.Table) *models.ChartProps {
	props := &models.ChartProps{
		DataSettings: models.DataSettings{Data: t.Records()},
	}
	key := ind.Value

	switch tab {
	case models.TabRanks:
		layout, ok := barLayouts[o]
		if !ok {
			layout = barLayouts[models.Horizontal]
		}
		props.GraphType = layout.graphType
		props.GraphDataConfiguration = []models.DataConfiguration{
			{ColumnID: []string{engine.RegionColumn}, ChartConfigID: "label"},
			{ColumnID: []string{key}, ChartConfigID: "size"},
		}
		props.GraphSettings = models.GraphSettings{
			GraphTitle:       ind.Label,
			GraphDescription: ind.Description,
			Padding:          chartPadding,
			GraphDownload:    ptr(true),
			DataDownload:     ptr(true),
			Height:           ptr(layout.height),
			BarPadding:       ptr(0.1),
			LeftMargin:       ptr(layout.leftMargin),
			TruncateBy:       ptr(layout.truncateBy),
			SortData:         "desc",
			ShowTicks:        ptr(false),
		}
	case models.TabTrends:
		props.GraphType = models.LineChart
		props.GraphDataConfiguration = []models.DataConfiguration{
			{ColumnID: []string{engine.RegionColumn}, ChartConfigID: "date"},
			{ColumnID: []string{key}, ChartConfigID: "y"},
		}
		props.GraphSettings = models.GraphSettings{
			GraphTitle: ind.Label,
			Padding:    chartPadding,
		}
	case models.TabDisaggregations:
		props.GraphType = models.HorizontalDumbbellChart
		props.GraphDataConfiguration = []models.DataConfiguration{
			{ColumnID: []string{engine.RegionColumn}, ChartConfigID: "label"},
			{ColumnID: []string{key, key}, ChartConfigID: "x"},
		}
		props.GraphSettings = models.GraphSettings{
			GraphTitle:    ind.Label,
			Padding:       chartPadding,
			GraphDownload: ptr(true),
			DataDownload:  ptr(true),
		}
	default:
		panic(fmt.Sprintf("dashboard: no chart for tab %q", tab))
	}
	return props
}

func ptr[T any](v T) *T { return &v }
