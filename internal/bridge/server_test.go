package bridge_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhayashi-dev/prodtrack/internal/bridge"
	"github.com/mhayashi-dev/prodtrack/internal/editlock"
	"github.com/mhayashi-dev/prodtrack/internal/pages"
	"github.com/mhayashi-dev/prodtrack/internal/testutil"
)

type wireResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func dialBridge(t *testing.T) (*websocket.Conn, *testutil.Fixture) {
	t.Helper()
	engine := testutil.NewTestEngine(t)
	f := testutil.NewFixture(t, engine)

	server := bridge.NewServer(engine, pages.NewService(engine), editlock.NewCoordinator(engine), nil)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, f
}

func call(t *testing.T, conn *websocket.Conn, id, method string, params any) wireResponse {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{
		"id":     id,
		"method": method,
		"params": params,
	}))
	var resp wireResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, id, resp.ID, "responses carry the request id")
	return resp
}

func TestBridge_Find(t *testing.T) {
	conn, f := dialBridge(t)
	f.Person("Aiko")
	f.Person("Daichi")

	resp := call(t, conn, "req-1", "find", map[string]any{
		"entity_type": "Person",
		"filters":     []any{[]any{"name", "is", "Aiko"}},
		"fields":      []string{"name"},
	})
	require.Nil(t, resp.Error)

	var records []map[string]any
	require.NoError(t, json.Unmarshal(resp.Result, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "Aiko", records[0]["name"])
	assert.Equal(t, "Person", records[0]["type"])
}

func TestBridge_MutationLifecycle(t *testing.T) {
	conn, _ := dialBridge(t)

	resp := call(t, conn, "c-1", "create_entity", map[string]any{
		"data": map[string]any{"type": "Department", "name": "CMF"},
	})
	require.Nil(t, resp.Error)
	var created map[string]any
	require.NoError(t, json.Unmarshal(resp.Result, &created))
	assert.Equal(t, "CMF", created["name"])
	id := created["id"].(float64)

	resp = call(t, conn, "u-1", "update_entity", map[string]any{
		"id":   id,
		"data": map[string]any{"type": "Department", "name": "Color & Materials"},
	})
	require.Nil(t, resp.Error)
	var updated map[string]any
	require.NoError(t, json.Unmarshal(resp.Result, &updated))
	assert.Equal(t, "Color & Materials", updated["name"])

	resp = call(t, conn, "d-1", "delete_entity", map[string]any{
		"entity_type": "Department",
		"id":          id,
	})
	require.Nil(t, resp.Error)
	var deleted map[string]any
	require.NoError(t, json.Unmarshal(resp.Result, &deleted))
	assert.Equal(t, true, deleted["success"])
}

func TestBridge_MutationFaultEnvelope(t *testing.T) {
	conn, _ := dialBridge(t)

	// Validation failures ride the result payload, not the error channel.
	resp := call(t, conn, "c-bad", "create_entity", map[string]any{
		"data": map[string]any{"type": "Department", "no_such_field": 1},
	})
	require.Nil(t, resp.Error)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(resp.Result, &envelope))
	assert.Equal(t, true, envelope["error"])
	assert.NotEmpty(t, envelope["message"])
}

func TestBridge_QueryErrorsUseErrorChannel(t *testing.T) {
	conn, _ := dialBridge(t)

	resp := call(t, conn, "q-bad", "find", map[string]any{"entity_type": "Spaceship"})
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "Spaceship")

	resp = call(t, conn, "m-bad", "warp_drive", nil)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "unknown method")
}

func TestBridge_ProjectPageAndLocks(t *testing.T) {
	conn, f := dialBridge(t)

	aiko := f.Person("Aiko")
	sedan := f.Subproject("Sedan MY26")
	f.Phase(sedan, "Concept")

	resp := call(t, conn, "p-1", "fetch_project_page", map[string]any{"project_id": sedan})
	require.Nil(t, resp.Error)
	var page pages.ProjectPage
	require.NoError(t, json.Unmarshal(resp.Result, &page))
	assert.Len(t, page.Phases, 1)

	resp = call(t, conn, "l-1", "acquire_edit_lock", map[string]any{
		"subproject_id": sedan,
		"user_id":       aiko,
	})
	require.Nil(t, resp.Error)
	var status editlock.Status
	require.NoError(t, json.Unmarshal(resp.Result, &status))
	assert.True(t, status.Success)

	resp = call(t, conn, "l-2", "release_edit_lock", map[string]any{
		"subproject_id": sedan,
		"user_id":       aiko,
	})
	require.Nil(t, resp.Error)
}

func TestBridge_GetEntity(t *testing.T) {
	conn, f := dialBridge(t)

	step := f.Step("Sketch", "255, 200, 0")

	resp := call(t, conn, "g-1", "get_entity", map[string]any{
		"entity_type": "Step",
		"id":          step,
	})
	require.Nil(t, resp.Error)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(resp.Result, &rec))
	assert.Equal(t, "Sketch", rec["name"])
	assert.Equal(t, "255, 200, 0", rec["color"])
}
