package models

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// Metadata is one selectable indicator as listed in meta.json.
type Metadata struct {
	IndicatorDescription string  `json:"IndicatorDescription,omitempty"`
	Indicator            string  `json:"Indicator"`
	DataKey              DataKey `json:"DataKey"`
}

// DataKey is a dataset column name. meta.json sometimes carries it as a number.
type DataKey string

func (k *DataKey) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*k = DataKey(s)
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		*k = ""
		return nil
	}
	if _, err := strconv.ParseFloat(string(b), 64); err != nil {
		return fmt.Errorf("data key %s: not a string or number", b)
	}
	*k = DataKey(b)
	return nil
}

// Option is the selector-facing projection of a Metadata entry.
type Option struct {
	Value       string `json:"value"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

type Tab string

const (
	TabMap             Tab = "map"
	TabRanks           Tab = "ranks"
	TabTrends          Tab = "trends"
	TabDisaggregations Tab = "disaggregations"
	TabTable           Tab = "table"
)

// Tabs in header order.
var Tabs = []TabItem{
	{Value: TabMap, Label: "Map", Icon: "map"},
	{Value: TabRanks, Label: "Ranks", Icon: "bar-chart-3"},
	{Value: TabTrends, Label: "Trends", Icon: "line-chart"},
	{Value: TabDisaggregations, Label: "Disaggregations", Icon: "ungroup"},
	{Value: TabTable, Label: "Table View", Icon: "table"},
}

type TabItem struct {
	Value Tab    `json:"value"`
	Label string `json:"label"`
	Icon  string `json:"icon"`
}

func (t Tab) Valid() bool {
	for _, item := range Tabs {
		if item.Value == t {
			return true
		}
	}
	return false
}

// Charted reports whether the tab renders a chart rather than a placeholder.
func (t Tab) Charted() bool {
	return t == TabRanks || t == TabTrends || t == TabDisaggregations
}

type Orientation string

const (
	Horizontal Orientation = "horizontal"
	Vertical   Orientation = "vertical"
)

func (o Orientation) Valid() bool {
	return o == Horizontal || o == Vertical
}

type LoadStatus string

const (
	StatusLoading LoadStatus = "loading"
	StatusReady   LoadStatus = "ready"
	StatusError   LoadStatus = "error"
)

// LoadState reports the progress of one resource load.
type LoadState struct {
	Status LoadStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// --- CHART PROPS (consumed by the visualization library) ---

type GraphType string

const (
	HorizontalBarChart      GraphType = "horizontalBarChart"
	VerticalBarChart        GraphType = "verticalBarChart"
	LineChart               GraphType = "lineChart"
	HorizontalDumbbellChart GraphType = "horizontalDumbbellChart"
)

type ChartProps struct {
	DataSettings           DataSettings        `json:"dataSettings"`
	GraphType              GraphType           `json:"graphType"`
	GraphDataConfiguration []DataConfiguration `json:"graphDataConfiguration"`
	GraphSettings          GraphSettings       `json:"graphSettings"`
}

type DataSettings struct {
	Data any `json:"data"`
}

// DataConfiguration maps one or more dataset columns onto a visual channel.
// A single column is encoded as a string, several as an array.
type DataConfiguration struct {
	ColumnID      []string `json:"-"`
	ChartConfigID string   `json:"-"`
}

func (d DataConfiguration) MarshalJSON() ([]byte, error) {
	var col any = d.ColumnID
	if len(d.ColumnID) == 1 {
		col = d.ColumnID[0]
	}
	return json.Marshal(struct {
		ColumnID      any    `json:"columnId"`
		ChartConfigID string `json:"chartConfigId"`
	}{col, d.ChartConfigID})
}

type GraphSettings struct {
	GraphTitle       string   `json:"graphTitle,omitempty"`
	GraphDescription string   `json:"graphDescription,omitempty"`
	Padding          string   `json:"padding,omitempty"`
	GraphDownload    *bool    `json:"graphDownload,omitempty"`
	DataDownload     *bool    `json:"dataDownload,omitempty"`
	Height           *int     `json:"height,omitempty"`
	BarPadding       *float64 `json:"barPadding,omitempty"`
	LeftMargin       *int     `json:"leftMargin,omitempty"`
	TruncateBy       *int     `json:"truncateBy,omitempty"`
	SortData         string   `json:"sortData,omitempty"`
	ShowTicks        *bool    `json:"showTicks,omitempty"`
}

// --- VIEW ---

type BodyKind string

const (
	BodyLoading     BodyKind = "loading"
	BodyError       BodyKind = "error"
	BodyChart       BodyKind = "chart"
	BodyPlaceholder BodyKind = "placeholder"
	BodyPrompt      BodyKind = "prompt"
	BodyEmpty       BodyKind = "empty"
)

type Body struct {
	Kind    BodyKind    `json:"kind"`
	Chart   *ChartProps `json:"chart,omitempty"`
	Message string      `json:"message,omitempty"`
}

// View is the rendered state of one mounted dashboard.
type View struct {
	Anchor          string        `json:"anchor"`
	Country         string        `json:"country"`
	Profile         string        `json:"profile"`
	Tab             Tab           `json:"tab"`
	Tabs            []TabItem     `json:"tabs"`
	Indicator       *Option       `json:"indicator"`
	Options         []Option      `json:"options"`
	Orientation     Orientation   `json:"orientation,omitempty"`
	Orientations    []Orientation `json:"orientations,omitempty"`
	SidebarExpanded bool          `json:"sidebarExpanded"`
	Dataset         LoadState     `json:"dataset"`
	Metadata        LoadState     `json:"metadata"`
	Body            Body          `json:"body"`
	Warnings        []string      `json:"warnings,omitempty"`
}

// RankedItem is one region in an indicator ranking.
type RankedItem struct {
	Rank   int     `json:"rank"`
	Region string  `json:"region"`
	Value  float64 `json:"value"`
}

type Summary struct {
	Count   int     `json:"count"`
	Missing int     `json:"missing"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Mean    float64 `json:"mean"`
}

type Ranking struct {
	Indicator string       `json:"indicator"`
	Items     []RankedItem `json:"items"`
	Summary   Summary      `json:"summary"`
}
