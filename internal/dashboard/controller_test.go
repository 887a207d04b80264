package dashboard

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"dashboard/internal/engine"
	"dashboard/internal/models"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testMeta = `[
  {"Indicator":"Indicator 1","DataKey":"a","IndicatorDescription":"Share of a"},
  {"Indicator":"Indicator 2","DataKey":"b"}
]`

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"KEN.csv":   {Data: []byte("Region name,a,b\nNairobi,4,1\nMombasa,2,\nKisumu,7,3\n")},
		"NGA.csv":   {Data: []byte("Region name,a,b\nLagos,9,2\nKano,5,1\n")},
		"meta.json": {Data: []byte(testMeta)},
	}
}

// gatedSource blocks dataset loads for gated codes until released. It
// deliberately ignores cancellation so a stale load can finish late.
type gatedSource struct {
	engine.Source

	mu    sync.Mutex
	gates map[string]chan struct{}
}

func newGatedSource(inner engine.Source, codes ...string) *gatedSource {
	g := &gatedSource{Source: inner, gates: make(map[string]chan struct{})}
	for _, c := range codes {
		g.gates[c] = make(chan struct{})
	}
	return g
}

func (g *gatedSource) Dataset(ctx context.Context, code string) (io.ReadCloser, error) {
	g.mu.Lock()
	gate := g.gates[code]
	g.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return g.Source.Dataset(context.Background(), code)
}

func (g *gatedSource) release(code string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	close(g.gates[code])
	delete(g.gates, code)
}

type failingSource struct {
	engine.Source
}

func (failingSource) Dataset(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("connection refused")
}

func mount(t *testing.T, src engine.Source, profile Profile) *Controller {
	t.Helper()
	c, err := New("KEN", src, Config{Profile: profile})
	require.NoError(t, err)
	require.NoError(t, c.Mount(context.Background()))
	t.Cleanup(func() { _ = c.Unmount(context.Background()) })
	return c
}

func waitIdle(t *testing.T, c *Controller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
}

func TestInitialState(t *testing.T) {
	c, err := New("KEN", engine.DirSource{FS: testFS()}, Config{})
	require.NoError(t, err)

	v := c.Render()
	assert.Equal(t, models.TabMap, v.Tab)
	assert.Nil(t, v.Indicator)
	assert.Equal(t, models.Horizontal, v.Orientation)
	assert.True(t, v.SidebarExpanded)
	assert.Equal(t, models.BodyLoading, v.Body.Kind)
	assert.Equal(t, "explorer", v.Profile)
	assert.Equal(t, "KEN", v.Anchor)
	assert.Len(t, v.Tabs, 5)
}

func TestNew_InvalidCode(t *testing.T) {
	_, err := New("../x", engine.DirSource{FS: testFS()}, Config{})
	assert.Error(t, err)
}

func TestDefaultIndicatorSelected(t *testing.T) {
	c := mount(t, engine.DirSource{FS: testFS()}, Explorer)
	waitIdle(t, c)

	v := c.Render()
	require.NotNil(t, v.Indicator)
	assert.Equal(t, models.Option{Value: "a", Label: "Indicator 1", Description: "Share of a"}, *v.Indicator)
	assert.Equal(t, models.StatusReady, v.Dataset.Status)
	assert.Equal(t, models.StatusReady, v.Metadata.Status)
}

func TestDefaultIndicatorMissing(t *testing.T) {
	fsys := testFS()
	fsys["meta.json"] = &fstest.MapFile{Data: []byte(`[{"Indicator":"Other","DataKey":"a"}]`)}

	for _, profile := range []Profile{Explorer, Compact} {
		t.Run(profile.Name, func(t *testing.T) {
			c := mount(t, engine.DirSource{FS: fsys}, profile)
			waitIdle(t, c)

			assert.Nil(t, c.Render().Indicator)
			for _, tab := range []models.Tab{models.TabRanks, models.TabTrends, models.TabDisaggregations} {
				require.NoError(t, c.SetTab(tab))
				body := c.Render().Body
				assert.Nil(t, body.Chart, tab)
				if profile.PromptUnselected {
					assert.Equal(t, models.BodyPrompt, body.Kind)
					assert.Equal(t, SelectPrompt, body.Message)
				} else {
					assert.Equal(t, models.BodyEmpty, body.Kind)
				}
			}
		})
	}
}

func TestChartIffChartTabAndIndicator(t *testing.T) {
	fsys := testFS()
	fsys["meta.json"] = &fstest.MapFile{Data: []byte(`[{"Indicator":"Indicator 2","DataKey":"b"}]`)}

	for _, profile := range []Profile{Explorer, Compact} {
		c := mount(t, engine.DirSource{FS: fsys}, profile)
		waitIdle(t, c)

		for _, selected := range []bool{false, true} {
			if selected {
				_, err := c.SelectIndicator("b")
				require.NoError(t, err)
			}
			for _, item := range models.Tabs {
				require.NoError(t, c.SetTab(item.Value))
				body := c.Render().Body
				want := selected && item.Value.Charted()
				assert.Equal(t, want, body.Kind == models.BodyChart, "%s tab=%s selected=%v", profile.Name, item.Value, selected)
				assert.Equal(t, want, body.Chart != nil)
			}
		}
	}
}

func TestPlaceholders(t *testing.T) {
	fsys := testFS()
	fsys["meta.json"] = &fstest.MapFile{Data: []byte(`[]`)}

	explorer := mount(t, engine.DirSource{FS: fsys}, Explorer)
	compact := mount(t, engine.DirSource{FS: fsys}, Compact)
	waitIdle(t, explorer)
	waitIdle(t, compact)

	// no indicator: explorer hides placeholders, compact shows them
	assert.Equal(t, models.BodyEmpty, explorer.Render().Body.Kind)
	body := compact.Render().Body
	assert.Equal(t, models.BodyPlaceholder, body.Kind)
	assert.Equal(t, MapPlaceholder, body.Message)

	require.NoError(t, compact.SetTab(models.TabTable))
	assert.Equal(t, TablePlaceholder, compact.Render().Body.Message)
}

func TestOptionsRoundTrip(t *testing.T) {
	c := mount(t, engine.DirSource{FS: testFS()}, Explorer)
	waitIdle(t, c)

	meta, err := engine.DecodeMetadata(strings.NewReader(testMeta))
	require.NoError(t, err)
	keys := map[string]bool{}
	for _, m := range meta {
		keys[string(m.DataKey)] = true
	}

	opts := c.Options()
	require.Len(t, opts, len(meta))
	for _, o := range opts {
		assert.True(t, keys[o.Value], o.Value)
		got, err := c.SelectIndicator(o.Value)
		require.NoError(t, err)
		assert.Equal(t, o, got)
	}
}

func TestSelectUnknownIndicator(t *testing.T) {
	c := mount(t, engine.DirSource{FS: testFS()}, Explorer)
	waitIdle(t, c)

	_, err := c.SelectIndicator("zz")
	assert.ErrorIs(t, err, ErrUnknownIndicator)
	assert.Equal(t, "a", c.Render().Indicator.Value, "selection unchanged")
}

func TestToggleSidebarTwice(t *testing.T) {
	c := mount(t, engine.DirSource{FS: testFS()}, Explorer)
	before := c.Render().SidebarExpanded

	assert.Equal(t, !before, c.ToggleSidebar())
	assert.Equal(t, before, c.ToggleSidebar())
	assert.Equal(t, before, c.Render().SidebarExpanded)
}

func TestSetTab(t *testing.T) {
	c := mount(t, engine.DirSource{FS: testFS()}, Explorer)
	assert.ErrorIs(t, c.SetTab("pie"), ErrUnknownTab)
	require.NoError(t, c.SetTab(models.TabTrends))
	assert.Equal(t, models.TabTrends, c.Render().Tab)
}

func TestOrientationChangesOnlyLayout(t *testing.T) {
	c := mount(t, engine.DirSource{FS: testFS()}, Explorer)
	waitIdle(t, c)
	require.NoError(t, c.SetTab(models.TabRanks))

	h := c.Render()
	require.NoError(t, c.SetOrientation(models.Vertical))
	v := c.Render()

	require.NotNil(t, h.Body.Chart)
	require.NotNil(t, v.Body.Chart)
	hc, vc := h.Body.Chart, v.Body.Chart

	assert.Equal(t, models.HorizontalBarChart, hc.GraphType)
	assert.Equal(t, models.VerticalBarChart, vc.GraphType)
	assert.Equal(t, 1200, *hc.GraphSettings.Height)
	assert.Equal(t, 600, *vc.GraphSettings.Height)
	assert.Equal(t, 180, *hc.GraphSettings.LeftMargin)
	assert.Equal(t, 32, *vc.GraphSettings.LeftMargin)
	assert.Equal(t, 24, *hc.GraphSettings.TruncateBy)
	assert.Equal(t, 3, *vc.GraphSettings.TruncateBy)

	// everything else is untouched
	assert.Equal(t, h.Indicator, v.Indicator)
	assert.Equal(t, hc.DataSettings, vc.DataSettings)
	assert.Equal(t, hc.GraphDataConfiguration, vc.GraphDataConfiguration)
	hs, vs := hc.GraphSettings, vc.GraphSettings
	hs.Height, hs.LeftMargin, hs.TruncateBy = nil, nil, nil
	vs.Height, vs.LeftMargin, vs.TruncateBy = nil, nil, nil
	assert.Equal(t, hs, vs)

	assert.ErrorIs(t, c.SetOrientation("diagonal"), ErrUnknownOrientation)
}

func TestOrientationUnavailableInCompact(t *testing.T) {
	c := mount(t, engine.DirSource{FS: testFS()}, Compact)
	waitIdle(t, c)

	assert.ErrorIs(t, c.SetOrientation(models.Vertical), ErrOrientationUnavailable)
	v := c.Render()
	assert.Empty(t, v.Orientation)
	assert.Empty(t, v.Orientations)
	assert.Empty(t, v.Indicator.Description, "compact profile drops descriptions")

	require.NoError(t, c.SetTab(models.TabRanks))
	assert.Equal(t, models.HorizontalBarChart, c.Render().Body.Chart.GraphType)
}

func TestDatasetFailure(t *testing.T) {
	c := mount(t, failingSource{engine.DirSource{FS: testFS()}}, Explorer)
	waitIdle(t, c)

	v := c.Render()
	assert.Equal(t, models.StatusError, v.Dataset.Status)
	assert.Contains(t, v.Dataset.Error, "connection refused")
	assert.Equal(t, models.StatusReady, v.Metadata.Status)
	assert.NotNil(t, v.Indicator)

	for _, item := range models.Tabs {
		require.NoError(t, c.SetTab(item.Value))
		body := c.Render().Body
		assert.Equal(t, models.BodyError, body.Kind)
		assert.Nil(t, body.Chart)
	}

	_, err := c.Ranking()
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestMetadataFailure(t *testing.T) {
	fsys := testFS()
	delete(fsys, "meta.json")
	c := mount(t, engine.DirSource{FS: fsys}, Explorer)
	waitIdle(t, c)

	v := c.Render()
	assert.Equal(t, models.StatusError, v.Metadata.Status)
	assert.Empty(t, v.Options)
	assert.Nil(t, v.Indicator)
	assert.Equal(t, models.StatusReady, v.Dataset.Status)
}

func TestStaleDatasetDiscarded(t *testing.T) {
	src := newGatedSource(engine.DirSource{FS: testFS()}, "KEN")
	c := mount(t, src, Explorer)

	require.NoError(t, c.SetCountry("NGA"))
	// only the KEN load is still pending
	require.Eventually(t, func() bool {
		return c.Render().Dataset.Status == models.StatusReady
	}, 5*time.Second, 10*time.Millisecond)

	src.release("KEN")
	waitIdle(t, c)

	v := c.Render()
	assert.Equal(t, "NGA", v.Country)
	require.NoError(t, c.SetTab(models.TabRanks))
	rows := c.Render().Body.Chart.DataSettings.Data.([]engine.Record)
	require.Len(t, rows, 2)
	assert.Equal(t, engine.Str("Lagos"), rows[0][engine.RegionColumn])
}

func TestSetCountry(t *testing.T) {
	c := mount(t, engine.DirSource{FS: testFS()}, Explorer)
	waitIdle(t, c)

	assert.NoError(t, c.SetCountry("KEN"), "same code is a no-op")
	assert.Error(t, c.SetCountry("a/b"))

	require.NoError(t, c.SetCountry("XXX"))
	waitIdle(t, c)
	v := c.Render()
	assert.Equal(t, models.StatusError, v.Dataset.Status)
	assert.Equal(t, models.BodyError, v.Body.Kind)
	assert.NotNil(t, v.Indicator, "indicator survives a country change")
}

func TestMissingIndicatorColumnWarns(t *testing.T) {
	fsys := testFS()
	fsys["meta.json"] = &fstest.MapFile{Data: []byte(`[{"Indicator":"Indicator 1","DataKey":"zz"}]`)}
	c := mount(t, engine.DirSource{FS: fsys}, Explorer)
	waitIdle(t, c)

	v := c.Render()
	require.Len(t, v.Warnings, 1)
	assert.Contains(t, v.Warnings[0], `"zz"`)
}

func TestRanking(t *testing.T) {
	c := mount(t, engine.DirSource{FS: testFS()}, Explorer)
	waitIdle(t, c)

	r, err := c.Ranking()
	require.NoError(t, err)
	require.Len(t, r.Items, 3)
	assert.Equal(t, "Kisumu", r.Items[0].Region)

	_, err = c.SelectIndicator("b")
	require.NoError(t, err)
	r, err = c.Ranking()
	require.NoError(t, err)
	assert.Equal(t, 1, r.Summary.Missing)
}

func TestMountLifecycle(t *testing.T) {
	c, err := New("KEN", engine.DirSource{FS: testFS()}, Config{})
	require.NoError(t, err)
	require.NoError(t, c.Mount(context.Background()))
	assert.ErrorIs(t, c.Mount(context.Background()), ErrMounted)

	require.NoError(t, c.Unmount(context.Background()))
	assert.ErrorIs(t, c.Mount(context.Background()), ErrUnmounted)
	assert.ErrorIs(t, c.SetCountry("NGA"), ErrUnmounted)
	assert.NoError(t, c.Unmount(context.Background()))

	v := c.Render()
	assert.Nil(t, v.Indicator)
	assert.Empty(t, v.Options)
	assert.NotEqual(t, models.BodyChart, v.Body.Kind)
}

func TestUnmountCancelsLoads(t *testing.T) {
	src := newGatedSource(engine.DirSource{FS: testFS()}, "KEN")
	c, err := New("KEN", src, Config{})
	require.NoError(t, err)
	require.NoError(t, c.Mount(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	// the gated load ignores cancellation, so Unmount cannot finish yet
	assert.ErrorIs(t, c.Unmount(ctx), context.DeadlineExceeded)

	src.release("KEN")
	waitIdle(t, c)
	assert.Nil(t, c.Render().Body.Chart)
}

func TestChartPropsJSON(t *testing.T) {
	c := mount(t, engine.DirSource{FS: testFS()}, Explorer)
	waitIdle(t, c)

	decode := func(tab models.Tab) map[string]any {
		require.NoError(t, c.SetTab(tab))
		b, err := json.Marshal(c.Render().Body.Chart)
		require.NoError(t, err)
		var out map[string]any
		require.NoError(t, json.Unmarshal(b, &out))
		return out
	}

	ranks := decode(models.TabRanks)
	assert.Equal(t, "horizontalBarChart", ranks["graphType"])
	cfg := ranks["graphDataConfiguration"].([]any)
	assert.Equal(t, map[string]any{"columnId": "Region name", "chartConfigId": "label"}, cfg[0])
	assert.Equal(t, map[string]any{"columnId": "a", "chartConfigId": "size"}, cfg[1])
	settings := ranks["graphSettings"].(map[string]any)
	assert.Equal(t, false, settings["showTicks"])
	assert.Equal(t, "desc", settings["sortData"])
	assert.Equal(t, 0.1, settings["barPadding"])
	assert.Equal(t, "Share of a", settings["graphDescription"])
	data := ranks["dataSettings"].(map[string]any)["data"].([]any)
	require.Len(t, data, 3)
	assert.Equal(t, map[string]any{"Region name": "Mombasa", "a": 2.0, "b": nil}, data[1])

	trends := decode(models.TabTrends)
	assert.Equal(t, "lineChart", trends["graphType"])
	cfg = trends["graphDataConfiguration"].([]any)
	assert.Equal(t, "date", cfg[0].(map[string]any)["chartConfigId"])
	assert.Equal(t, "y", cfg[1].(map[string]any)["chartConfigId"])
	assert.NotContains(t, trends["graphSettings"], "graphDownload")

	dumbbell := decode(models.TabDisaggregations)
	assert.Equal(t, "horizontalDumbbellChart", dumbbell["graphType"])
	cfg = dumbbell["graphDataConfiguration"].([]any)
	assert.Equal(t, []any{"a", "a"}, cfg[1].(map[string]any)["columnId"])
	assert.Equal(t, true, dumbbell["graphSettings"].(map[string]any)["dataDownload"])
}

func TestRenderEncodesTextualNumbers(t *testing.T) {
	fsys := testFS()
	fsys["KEN.csv"] = &fstest.MapFile{Data: []byte("Region name,a,b\nNan,NaN,1\n001,-infinity,2\nNairobi,4,Inf\n")}
	c := mount(t, engine.DirSource{FS: fsys}, Explorer)
	waitIdle(t, c)

	for _, tab := range []models.Tab{models.TabRanks, models.TabTrends, models.TabDisaggregations} {
		require.NoError(t, c.SetTab(tab))
		v := c.Render()
		require.Equal(t, models.BodyChart, v.Body.Kind, tab)
		b, err := json.Marshal(v)
		require.NoError(t, err, tab)

		var out struct {
			Body struct {
				Chart struct {
					DataSettings struct {
						Data []map[string]any `json:"data"`
					} `json:"dataSettings"`
				} `json:"chart"`
			} `json:"body"`
		}
		require.NoError(t, json.Unmarshal(b, &out))
		data := out.Body.Chart.DataSettings.Data
		require.Len(t, data, 3)
		assert.Equal(t, map[string]any{"Region name": "Nan", "a": "NaN", "b": 1.0}, data[0])
		assert.Equal(t, "001", data[1]["Region name"])
		assert.Equal(t, "Inf", data[2]["b"])
	}

	r, err := c.Ranking()
	require.NoError(t, err)
	require.Len(t, r.Items, 1)
	assert.Equal(t, "Nairobi", r.Items[0].Region)
	assert.Equal(t, 2, r.Summary.Missing)
}
