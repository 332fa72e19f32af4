package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-desk/pkg/domain"
	"github.com/core-tools/hsu-desk/pkg/errors"
	"github.com/core-tools/hsu-desk/pkg/logging"
	"github.com/core-tools/hsu-desk/pkg/outputsink"
	"github.com/core-tools/hsu-desk/pkg/unitconfig"
)

type fakeContract struct {
	mutex     sync.Mutex
	units     map[string]*domain.UnitInfo
	overrides unitconfig.Overrides
	cleared   []string
	book      *outputsink.LogBook
}

func newFakeContract(book *outputsink.LogBook) *fakeContract {
	return &fakeContract{
		units: map[string]*domain.UnitInfo{
			"Worker":          {Name: "Worker", Kind: "process", State: "stopped"},
			"Main Centrifugo": {Name: "Main Centrifugo", Kind: "process", State: "stopped"},
		},
		book: book,
	}
}

func (f *fakeContract) lookup(name string) (*domain.UnitInfo, error) {
	unit, ok := f.units[name]
	if !ok {
		return nil, errors.NewNotFoundError("unit not found", nil).WithContext("unit", name)
	}
	return unit, nil
}

func (f *fakeContract) Status(ctx context.Context) ([]domain.UnitInfo, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return []domain.UnitInfo{*f.units["Main Centrifugo"], *f.units["Worker"]}, nil
}

func (f *fakeContract) Unit(ctx context.Context, name string) (domain.UnitInfo, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	unit, err := f.lookup(name)
	if err != nil {
		return domain.UnitInfo{}, err
	}
	return *unit, nil
}

func (f *fakeContract) Start(ctx context.Context, name string, overrides unitconfig.Overrides) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	unit, err := f.lookup(name)
	if err != nil {
		return err
	}
	if unit.State == "running" {
		return errors.NewAlreadyRunningError("unit is already running", nil)
	}
	unit.State = "running"
	f.overrides = overrides
	return nil
}

func (f *fakeContract) Stop(ctx context.Context, name string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	unit, err := f.lookup(name)
	if err != nil {
		return err
	}
	if unit.State != "running" {
		return errors.NewNotRunningError("unit is not running", nil)
	}
	unit.State = "stopped"
	return nil
}

func (f *fakeContract) Restart(ctx context.Context, name string, overrides unitconfig.Overrides) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	unit, err := f.lookup(name)
	if err != nil {
		return err
	}
	unit.State = "running"
	f.overrides = overrides
	return nil
}

func (f *fakeContract) ClearLog(ctx context.Context, name string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if _, err := f.lookup(name); err != nil {
		return err
	}
	f.cleared = append(f.cleared, name)
	f.book.Clear(name)
	return nil
}

func (f *fakeContract) Logs(ctx context.Context, name string, limit int) ([]string, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if _, err := f.lookup(name); err != nil {
		return nil, err
	}
	lines := f.book.Text(name)
	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return lines, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeContract, *outputsink.LogBook, *API) {
	t.Helper()
	book := outputsink.NewLogBook(100)
	contract := newFakeContract(book)
	api := NewAPI(contract, book, logging.Nop())
	server := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		api.CloseTails()
		server.Close()
	})
	return server, contract, book, api
}

func doRequest(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	headers := map[string]string{}
	if body != "" {
		headers["Content-Type"] = "application/json"
	}
	return doRequestWithHeaders(t, method, url, body, headers)
}

func doRequestWithHeaders(t *testing.T, method, url, body string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	request, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	for key, value := range headers {
		request.Header.Set(key, value)
	}
	response, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	defer response.Body.Close()
	data, err := io.ReadAll(response.Body)
	require.NoError(t, err)
	return response, data
}

func TestAPI_Health(t *testing.T) {
	server, _, _, _ := newTestServer(t)
	response, body := doRequest(t, http.MethodGet, server.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestAPI_ListAndGetUnits(t *testing.T) {
	server, _, _, _ := newTestServer(t)

	response, body := doRequest(t, http.MethodGet, server.URL+"/api/v1/units", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	var units []domain.UnitInfo
	require.NoError(t, json.Unmarshal(body, &units))
	require.Len(t, units, 2)
	assert.Equal(t, "Main Centrifugo", units[0].Name)

	response, body = doRequest(t, http.MethodGet, server.URL+"/api/v1/units/Main%20Centrifugo", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	var unit domain.UnitInfo
	require.NoError(t, json.Unmarshal(body, &unit))
	assert.Equal(t, "Main Centrifugo", unit.Name)

	response, body = doRequest(t, http.MethodGet, server.URL+"/api/v1/units/Nope", "")
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
	assert.Contains(t, string(body), `"type":"not_found"`)
}

func TestAPI_StartStopLifecycle(t *testing.T) {
	server, contract, _, _ := newTestServer(t)
	base := server.URL + "/api/v1/units/Worker"

	response, body := doRequest(t, http.MethodPost, base+"/start", `{"working_directory":"/srv/worker","command_line":"php  worker.php --fast"}`)
	require.Equal(t, http.StatusOK, response.StatusCode, string(body))
	assert.Contains(t, string(body), `"state":"running"`)
	require.NotNil(t, contract.overrides.WorkingDirectory)
	assert.Equal(t, "/srv/worker", *contract.overrides.WorkingDirectory)
	assert.Equal(t, []string{"php", "worker.php", "--fast"}, contract.overrides.CommandLine)

	response, _ = doRequest(t, http.MethodPost, base+"/start", "")
	assert.Equal(t, http.StatusConflict, response.StatusCode)

	response, _ = doRequest(t, http.MethodPost, base+"/stop", "")
	assert.Equal(t, http.StatusOK, response.StatusCode)

	response, body = doRequest(t, http.MethodPost, base+"/stop", "")
	assert.Equal(t, http.StatusConflict, response.StatusCode)
	assert.Contains(t, string(body), `"type":"not_running"`)

	response, _ = doRequest(t, http.MethodPost, base+"/restart", "")
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.True(t, contract.overrides.IsEmpty())
}

func TestAPI_MalformedStartBody(t *testing.T) {
	server, _, _, _ := newTestServer(t)
	response, body := doRequest(t, http.MethodPost, server.URL+"/api/v1/units/Worker/start", `{"working_directory":`)
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
	assert.Contains(t, string(body), `"type":"validation"`)
}

func TestAPI_StateChangesRejectForeignOrigins(t *testing.T) {
	server, contract, _, _ := newTestServer(t)
	base := server.URL + "/api/v1/units/Worker"
	body := `{"command_line":"sh -c 'touch /tmp/pwned'"}`

	// A form-style POST from another site carries text/plain and a foreign Origin
	response, data := doRequestWithHeaders(t, http.MethodPost, base+"/start", body, map[string]string{
		"Content-Type": "text/plain",
		"Origin":       "https://evil.example",
	})
	assert.Equal(t, http.StatusForbidden, response.StatusCode)
	assert.Contains(t, string(data), `"type":"permission"`)

	response, _ = doRequestWithHeaders(t, http.MethodPost, base+"/start", "", map[string]string{
		"Referer": "https://evil.example/page.html",
	})
	assert.Equal(t, http.StatusForbidden, response.StatusCode)

	response, _ = doRequestWithHeaders(t, http.MethodPost, base+"/start", "", map[string]string{
		"Origin": "null",
	})
	assert.Equal(t, http.StatusForbidden, response.StatusCode)

	response, _ = doRequestWithHeaders(t, http.MethodDelete, base+"/logs", "", map[string]string{
		"Origin": "https://evil.example",
	})
	assert.Equal(t, http.StatusForbidden, response.StatusCode)

	unit, err := contract.Unit(context.Background(), "Worker")
	require.NoError(t, err)
	assert.Equal(t, "stopped", unit.State)
	assert.Nil(t, contract.overrides.CommandLine)
	assert.Empty(t, contract.cleared)
}

func TestAPI_StateChangesRequireJSONBody(t *testing.T) {
	server, contract, _, _ := newTestServer(t)
	base := server.URL + "/api/v1/units/Worker"

	response, data := doRequestWithHeaders(t, http.MethodPost, base+"/start", `{"command_line":"sleep 1"}`, map[string]string{
		"Content-Type": "text/plain",
	})
	assert.Equal(t, http.StatusUnsupportedMediaType, response.StatusCode)
	assert.Contains(t, string(data), `"type":"validation"`)

	response, _ = doRequestWithHeaders(t, http.MethodPost, base+"/start", `{"command_line":"sleep 1"}`, nil)
	assert.Equal(t, http.StatusUnsupportedMediaType, response.StatusCode)

	unit, err := contract.Unit(context.Background(), "Worker")
	require.NoError(t, err)
	assert.Equal(t, "stopped", unit.State)

	// Local pages and charset parameters are fine
	response, data = doRequestWithHeaders(t, http.MethodPost, base+"/start", `{"command_line":"sleep 1"}`, map[string]string{
		"Content-Type": "application/json; charset=utf-8",
		"Origin":       server.URL,
		"Referer":      "http://localhost:50067/",
	})
	require.Equal(t, http.StatusOK, response.StatusCode, string(data))
	assert.Equal(t, []string{"sleep", "1"}, contract.overrides.CommandLine)
}

func TestAPI_LogsAndClear(t *testing.T) {
	server, contract, book, _ := newTestServer(t)
	for _, line := range []string{"one", "two", "three"} {
		book.Append("Worker", line)
	}
	base := server.URL + "/api/v1/units/Worker/logs"

	response, body := doRequest(t, http.MethodGet, base+"?limit=2", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.JSONEq(t, `{"unit":"Worker","lines":["two","three"]}`, string(body))

	response, _ = doRequest(t, http.MethodGet, base+"?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)

	response, _ = doRequest(t, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNoContent, response.StatusCode)
	assert.Equal(t, []string{"Worker"}, contract.cleared)
	assert.Empty(t, book.Text("Worker"))
}

func TestAPI_Metrics(t *testing.T) {
	server, _, _, _ := newTestServer(t)
	response, body := doRequest(t, http.MethodGet, server.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}

func readEvent(t *testing.T, conn *websocket.Conn) outputsink.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev outputsink.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestAPI_TailSendsHistoryThenLiveRecords(t *testing.T) {
	server, _, book, _ := newTestServer(t)
	book.Append("Main Centrifugo", "old line")

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/units/Main%20Centrifugo/logs/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	ev := readEvent(t, conn)
	assert.Equal(t, outputsink.EventLine, ev.Type)
	assert.Equal(t, "old line", ev.Text)

	require.Eventually(t, func() bool { return book.SubscriberCount("Main Centrifugo") == 1 }, 5*time.Second, 10*time.Millisecond)
	book.Append("Main Centrifugo", "new line")
	book.Append("Worker", "other unit")
	book.Clear("Main Centrifugo")

	ev = readEvent(t, conn)
	assert.Equal(t, "new line", ev.Text)
	ev = readEvent(t, conn)
	assert.Equal(t, outputsink.EventClear, ev.Type)
}

func TestAPI_TailClosesOnShutdownAndUnsubscribes(t *testing.T) {
	server, _, book, api := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/units/Worker/logs/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return book.SubscriberCount("Worker") == 1 }, 5*time.Second, 10*time.Millisecond)
	api.CloseTails()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return book.SubscriberCount("Worker") == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestAPI_TailUnknownUnit(t *testing.T) {
	server, _, _, _ := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/units/Nope/logs/ws"
	_, response, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, response)
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
}

func TestCheckLocalOrigin(t *testing.T) {
	cases := map[string]bool{
		"":                          true,
		"http://localhost:3000":     true,
		"http://127.0.0.1:50067":    true,
		"http://[::1]:8080":         true,
		"http://desk.example":       true,
		"https://evil.example":      false,
		"http://192.168.1.10:50067": false,
	}
	for origin, want := range cases {
		request := httptest.NewRequest(http.MethodGet, "http://desk.example/api/v1/units/x/logs/ws", nil)
		if origin != "" {
			request.Header.Set("Origin", origin)
		}
		assert.Equal(t, want, checkLocalOrigin(request), origin)
	}
}

func TestCheckLocalReferer(t *testing.T) {
	cases := map[string]bool{
		"":                               true,
		"http://127.0.0.1:50067/ui":      true,
		"http://desk.example/index.html": true,
		"https://evil.example/form.html": false,
	}
	for referer, want := range cases {
		request := httptest.NewRequest(http.MethodPost, "http://desk.example/api/v1/units/x/start", nil)
		if referer != "" {
			request.Header.Set("Referer", referer)
		}
		assert.Equal(t, want, checkLocalReferer(request), referer)
	}
}
