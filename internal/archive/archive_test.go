package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func testCorpus() Corpus {
	return Corpus{
		Events: []Event{
			{Year: 548, Month: 12, Location: "台城", LocationEn: "Taicheng", Title: "b", ThreatLevel: 35, Tags: []string{"siege"}},
			{Year: 548, Month: 10, Location: "建康", LocationEn: "Jiankang", Title: "a", ThreatLevel: 75, Tags: []string{"siege", "military"}},
			{Year: 548, Month: 12, Location: "建康", LocationEn: "Jiankang", Title: "c", ThreatLevel: 25, Tags: []string{"relief"}},
			{Year: 549, Location: "江陵", LocationEn: "Jiangling", Title: "d", ThreatLevel: 15, Tags: []string{"refuge"}},
			{Year: 547, Month: 1, Location: "寿阳", Title: "e", ThreatLevel: 10},
		},
		Places: []Place{
			{AncientName: "建康", ModernName: "南京", EnglishName: "Jiankang", DangerLevel: 90, Description: "都城被围"},
			{AncientName: "江陵", ModernName: "荆州", EnglishName: "Jiangling", DangerLevel: 40,
				SafePeriodStart: intPtr(549), SafePeriodEnd: intPtr(553), Description: "相对安全"},
			{AncientName: "寻阳", ModernName: "九江", EnglishName: "Xunyang", DangerLevel: 45, Description: "观望"},
		},
		Figures:      []Figure{{"name": "侯景"}},
		SurvivalTips: []SurvivalTip{{Situation: "被围", Advice: "出城"}},
	}
}

func titles(events []Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Title)
	}
	return out
}

func TestSearch_Filters(t *testing.T) {
	a := New(testCorpus())

	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{"no filters", Query{}, []string{"b", "a", "c", "d", "e"}},
		{"year", Query{Year: 548}, []string{"b", "a", "c"}},
		{"year and month", Query{Year: 548, Month: 12}, []string{"b", "c"}},
		{"local name substring", Query{Location: "建"}, []string{"a", "c"}},
		{"english alias case-insensitive", Query{Location: "JIANK"}, []string{"a", "c"}},
		{"tags overlap", Query{Tags: []string{"military", "refuge"}}, []string{"a", "d"}},
		{"empty tag list matches nothing", Query{Tags: []string{}}, []string{}},
		{"all filters", Query{Year: 548, Month: 12, Location: "建康", Tags: []string{"relief"}}, []string{"c"}},
		{"no match", Query{Year: 600}, []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := a.Search(tc.query)
			assert.Equal(t, tc.want, titles(res.Events))
			// Figures and tips are never filtered.
			assert.Len(t, res.Figures, 1)
			assert.Len(t, res.SurvivalTips, 1)
		})
	}
}

func TestSearch_Places(t *testing.T) {
	a := New(testCorpus())

	assert.Len(t, a.Search(Query{}).Places, 3)

	res := a.Search(Query{Location: "荆州"})
	require.Len(t, res.Places, 1)
	assert.Equal(t, "江陵", res.Places[0].AncientName)

	res = a.Search(Query{Location: "xunyang"})
	require.Len(t, res.Places, 1)
	assert.Equal(t, "寻阳", res.Places[0].AncientName)

	assert.Empty(t, a.Search(Query{Location: "长安"}).Places)
}

func TestEventsOnDate_CorpusOrder(t *testing.T) {
	a := New(testCorpus())
	assert.Equal(t, []string{"b", "c"}, titles(a.EventsOnDate(548, 12)))
	assert.Equal(t, []string{"b", "a", "c"}, titles(a.EventsOnDate(548, 0)))
	assert.Empty(t, a.EventsOnDate(700, 1))
}

func TestTimeline_Sorted(t *testing.T) {
	a := New(testCorpus())
	assert.Equal(t, []string{"e", "a", "b", "c", "d"}, titles(a.Timeline(547, 549)))
	assert.Equal(t, []string{"a", "b", "c"}, titles(a.Timeline(548, 548)))
	assert.Empty(t, a.Timeline(560, 570))
}

func TestAssessDanger(t *testing.T) {
	a := New(testCorpus())

	d := a.AssessDanger("建康", 548)
	assert.Equal(t, 90, d.Level)
	assert.Equal(t, "都城被围", d.Reasoning)
	require.NotNil(t, d.Place)
	assert.Equal(t, "建康", d.Place.AncientName)

	// Inside the safe period the rating is capped.
	d = a.AssessDanger("江陵", 550)
	assert.Equal(t, 30, d.Level)
	assert.Contains(t, d.Reasoning, "江陵在此期间相对安全")
	assert.Contains(t, d.ReasoningEn, "Jiangling is relatively safe")

	// Safe period bounds are inclusive.
	assert.Equal(t, 30, a.AssessDanger("江陵", 549).Level)
	assert.Equal(t, 30, a.AssessDanger("江陵", 553).Level)
	assert.Equal(t, 40, a.AssessDanger("江陵", 548).Level)
	assert.Equal(t, 40, a.AssessDanger("江陵", 554).Level)
}

func TestAssessDanger_SafePeriodNeverRaises(t *testing.T) {
	a := New(Corpus{Places: []Place{
		{AncientName: "x", DangerLevel: 10, SafePeriodStart: intPtr(500), SafePeriodEnd: intPtr(600)},
	}})
	assert.Equal(t, 10, a.AssessDanger("x", 550).Level)
}

func TestAssessDanger_UnknownPlace(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	for _, a := range []*Archive{New(testCorpus()), Empty()} {
		d := a.AssessDanger("长安", 548)
		assert.Equal(t, UnknownDangerLevel, d.Level)
		assert.Equal(t, 50, d.Level)
		assert.Contains(t, d.ReasoningEn, "proceed with caution")
		assert.Nil(t, d.Place)
	}

	// Snapshots assess danger on every turn, so a missing record is not a warning.
	for _, e := range hook.AllEntries() {
		assert.NotEqual(t, logrus.WarnLevel, e.Level, e.Message)
	}
}

func TestLoad_MissingFileDegrades(t *testing.T) {
	a := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NotNil(t, a)
	assert.Equal(t, Stats{}, a.Stats())
	assert.Empty(t, a.EventsOnDate(548, 12))
	assert.Equal(t, 50, a.AssessDanger("建康", 548).Level)
}

func TestLoad_MalformedFileDegrades(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"events": [`), 0o644))
	a := Load(path)
	assert.Equal(t, Stats{}, a.Stats())
}

func TestLoad_YAML(t *testing.T) {
	doc := `
events:
  - year: 548
    month: 12
    location: 台城
    location_en: Taicheng
    title: 东府城陷落
    description: 叛军攻陷东府城
    threat_level: 35
    tags: [siege]
locations:
  - ancient_name: 江陵
    name_en: Jiangling
    danger_level: 20
    safe_period_start: 549
    safe_period_end: 553
    description: 安全
figures:
  - name: 侯景
survival_tips:
  - situation: 被围
    advice: 出城
`
	path := filepath.Join(t.TempDir(), "corpus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	a := Load(path)
	assert.Equal(t, Stats{Events: 1, Places: 1, Figures: 1, SurvivalTips: 1}, a.Stats())
	assert.Equal(t, 20, a.AssessDanger("Jiangling", 548).Level)
	assert.Equal(t, 20, a.AssessDanger("江陵", 551).Level)
	assert.Equal(t, "侯景", a.Search(Query{}).Figures[0]["name"])
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatForPath("a/b.YML"))
	assert.Equal(t, FormatYAML, FormatForPath("c.yaml"))
	assert.Equal(t, FormatJSON, FormatForPath("c.json"))
	assert.Equal(t, FormatJSON, FormatForPath("c"))
}

func TestDefaultCorpus(t *testing.T) {
	a := Default()
	stats := a.Stats()
	assert.NotZero(t, stats.Events)
	assert.NotZero(t, stats.Places)

	december := a.EventsOnDate(548, 12)
	require.NotEmpty(t, december)
	for _, e := range december {
		assert.Equal(t, 548, e.Year)
		assert.Equal(t, 12, e.Month)
		assert.GreaterOrEqual(t, e.ThreatLevel, 0)
		assert.LessOrEqual(t, e.ThreatLevel, 100)
	}

	// 江陵 is a refuge before Western Wei takes it.
	assert.Less(t, a.AssessDanger("江陵", 548).Level, 40)
	assert.Less(t, a.AssessDanger("江陵", 551).Level, 40)
	assert.GreaterOrEqual(t, a.AssessDanger("建康", 548).Level, 40)
}

func TestFormatContext(t *testing.T) {
	a := New(testCorpus())
	out := FormatContext(a.Search(Query{Year: 548, Month: 12, Location: "建康"}))
	assert.Contains(t, out, "### Recent Events:")
	assert.Contains(t, out, "**548年12月** (建康): c")
	assert.Contains(t, out, "**建康** (Jiankang): 危险度 90/100")
	assert.Contains(t, out, "- 被围: 出城")

	assert.Equal(t, "549年", Event{Year: 549}.DateString())
}
