package mcptools

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/talgya/mind-lab/internal/archive"
)

func connect(t *testing.T, cfg Config) *sdk.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := sdk.NewInMemoryTransports()

	srv := NewServer(cfg)
	serverSession, err := srv.Connect(ctx, serverTransport)
	require.NoError(t, err)
	t.Cleanup(func() { serverSession.Close() })

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

// callTool invokes name and decodes its structured output into out. It
// returns whether the tool reported an error.
func callTool(t *testing.T, session *sdk.ClientSession, name string, args map[string]any, out any) bool {
	t.Helper()
	res, err := session.CallTool(context.Background(), &sdk.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	if res.IsError {
		return true
	}
	data, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
	return false
}

func TestListTools(t *testing.T) {
	session := connect(t, Config{Name: "mindlab", Version: "test"})

	res, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}
	sort.Strings(names)
	assert.Equal(t, []string{ToolAssessDanger, ToolRouteInfo, ToolSearchHistory, ToolTimeline}, names)
}

func TestRouteInfo(t *testing.T) {
	session := connect(t, Config{Name: "mindlab", Version: "test", Language: language.English})

	var out RouteInfoOutput
	isErr := callTool(t, session, ToolRouteInfo, map[string]any{"origin": "建康", "destination": "江陵"}, &out)
	require.False(t, isErr)

	assert.Equal(t, "建康", out.Origin)
	assert.Equal(t, "江陵", out.Destination)
	assert.InDelta(t, 654.88, out.DistanceKm, 0.5)
	assert.Equal(t, "西南偏西", out.Direction)
	assert.Equal(t, 104.0, math.Floor(out.TravelHours["boat"]))
	assert.Len(t, out.TravelHours, 4)
	assert.NotEmpty(t, out.Summary)
}

func TestRouteInfo_UnknownPlace(t *testing.T) {
	session := connect(t, Config{Name: "mindlab", Version: "test"})

	var out RouteInfoOutput
	assert.True(t, callTool(t, session, ToolRouteInfo, map[string]any{"origin": "建康", "destination": "蓬莱"}, &out))
}

func TestAssessDanger(t *testing.T) {
	session := connect(t, Config{Name: "mindlab", Version: "test"})

	var out AssessDangerOutput
	require.False(t, callTool(t, session, ToolAssessDanger, map[string]any{"location": "江陵", "year": 549}, &out))
	assert.True(t, out.Known)
	assert.Less(t, out.Level, 40)

	require.False(t, callTool(t, session, ToolAssessDanger, map[string]any{"location": "建康", "year": 548}, &out))
	assert.Equal(t, 90, out.Level)

	require.False(t, callTool(t, session, ToolAssessDanger, map[string]any{"location": "无名村", "year": 548}, &out))
	assert.False(t, out.Known)
	assert.Equal(t, archive.UnknownDangerLevel, out.Level)

	assert.True(t, callTool(t, session, ToolAssessDanger, map[string]any{"location": " ", "year": 548}, &out))
}

func TestSearchHistory(t *testing.T) {
	session := connect(t, Config{Name: "mindlab", Version: "test"})

	var out SearchHistoryOutput
	require.False(t, callTool(t, session, ToolSearchHistory, map[string]any{"year": 548, "month": 12}, &out))
	require.Len(t, out.Events, 3)
	assert.Equal(t, "东府城陷落", out.Events[0].Title)
	assert.NotEmpty(t, out.Places)
	assert.Len(t, out.SurvivalTips, 3)
	assert.Contains(t, out.Context, "东府城陷落")

	require.False(t, callTool(t, session, ToolSearchHistory, map[string]any{"location": "江陵"}, &out))
	require.Len(t, out.Places, 1)
	assert.Equal(t, "江陵", out.Places[0].AncientName)

	assert.True(t, callTool(t, session, ToolSearchHistory, map[string]any{"month": 13}, &out))
}

func TestTimeline(t *testing.T) {
	session := connect(t, Config{Name: "mindlab", Version: "test", Archive: archive.Empty()})

	var out TimelineOutput
	require.False(t, callTool(t, session, ToolTimeline, map[string]any{"start_year": 540, "end_year": 560}, &out))
	assert.Empty(t, out.Events)

	assert.True(t, callTool(t, session, ToolTimeline, map[string]any{"start_year": 560, "end_year": 540}, &out))
}

func TestTimeline_Sorted(t *testing.T) {
	session := connect(t, Config{Name: "mindlab", Version: "test"})

	var out TimelineOutput
	require.False(t, callTool(t, session, ToolTimeline, map[string]any{"start_year": 500, "end_year": 600}, &out))
	require.NotEmpty(t, out.Events)
	for i := 1; i < len(out.Events); i++ {
		prev, cur := out.Events[i-1], out.Events[i]
		assert.LessOrEqual(t, prev.Year*100+prev.Month, cur.Year*100+cur.Month)
	}
}
