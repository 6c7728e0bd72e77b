package api

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/db-query-assistant/backend/internal/config"
	"github.com/db-query-assistant/backend/internal/llm"
	"github.com/db-query-assistant/backend/internal/models"
	"github.com/db-query-assistant/backend/internal/parser"
	"github.com/db-query-assistant/backend/internal/session"
	"github.com/db-query-assistant/backend/internal/testutil"
	"github.com/db-query-assistant/backend/internal/upload"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type fixture struct {
	e        *echo.Echo
	h        *Handler
	sessions *session.Manager
	model    *testutil.MockModel
}

func newFixture(t *testing.T, replies ...testutil.Reply) *fixture {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Interpreter.SQLEngine = parser.EngineSQLite

	model := testutil.NewMockModel(replies...)
	factory := testutil.NewModelFactory(model)

	opts := parser.DefaultOptions()
	opts.SQLEngine = cfg.Interpreter.SQLEngine
	sessions := session.NewManager(cfg.Session, nil)
	svc := session.NewService(parser.NewRegistry(opts), cfg.LLM, session.WithModelFactory(factory.New))

	e := echo.New()
	e.HTTPErrorHandler = NewErrorHandler(true)
	return &fixture{
		e:        e,
		h:        NewHandler(sessions, svc, upload.NewIntake(cfg.Upload)),
		sessions: sessions,
		model:    model,
	}
}

func (f *fixture) context(req *http.Request, id string) (echo.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	c := f.e.NewContext(req, rec)
	if id != "" {
		c.SetParamNames("id")
		c.SetParamValues(id)
	}
	return c, rec
}

func jsonRequest(method, target string, body any) *http.Request {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func multipartRequest(t *testing.T, name string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/x/upload", body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	return req
}

func requireAPIError(t *testing.T, err error, status int, code string) {
	t.Helper()
	require.Error(t, err)
	apiErr := FromError(err)
	assert.Equal(t, status, apiErr.Status)
	assert.Equal(t, code, apiErr.Code)
}

func (f *fixture) configured(t *testing.T) *session.State {
	t.Helper()
	st := f.sessions.Create()
	c, _ := f.context(jsonRequest(http.MethodPost, "/", ConfigureRequest{APIKey: "secret"}), st.ID)
	require.NoError(t, f.h.HandleConfigure(c))
	return st
}

func (f *fixture) loaded(t *testing.T) *session.State {
	t.Helper()
	st := f.configured(t)
	c, rec := f.context(multipartRequest(t, "users.csv", []byte("id,name\n1,alice\n"), nil), st.ID)
	require.NoError(t, f.h.HandleUpload(c))
	require.Equal(t, http.StatusOK, rec.Code)
	return st
}

func TestHandleCreateAndGetSession(t *testing.T) {
	f := newFixture(t)

	c, rec := f.context(httptest.NewRequest(http.MethodPost, "/api/sessions", nil), "")
	require.NoError(t, f.h.HandleCreateSession(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.NotEmpty(t, snap.ID)
	assert.False(t, snap.Configured)

	c, rec = f.context(httptest.NewRequest(http.MethodGet, "/", nil), snap.ID)
	require.NoError(t, f.h.HandleGetSession(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), snap.ID)

	c, _ = f.context(httptest.NewRequest(http.MethodGet, "/", nil), "missing")
	requireAPIError(t, f.h.HandleGetSession(c), http.StatusNotFound, CodeNotFound)
}

func TestHandleDeleteSession(t *testing.T) {
	f := newFixture(t)
	st := f.configured(t)
	require.Equal(t, 1, f.sessions.Count())

	c, rec := f.context(httptest.NewRequest(http.MethodDelete, "/", nil), st.ID)
	require.NoError(t, f.h.HandleDeleteSession(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, f.sessions.Count())

	_, ok := f.sessions.Get(st.ID)
	assert.False(t, ok)

	c, _ = f.context(httptest.NewRequest(http.MethodDelete, "/", nil), st.ID)
	requireAPIError(t, f.h.HandleDeleteSession(c), http.StatusNotFound, CodeNotFound)
}

func TestHandleConfigure(t *testing.T) {
	f := newFixture(t)
	st := f.sessions.Create()

	c, _ := f.context(jsonRequest(http.MethodPost, "/", ConfigureRequest{}), st.ID)
	requireAPIError(t, f.h.HandleConfigure(c), http.StatusBadRequest, CodeValidation)

	c, rec := f.context(jsonRequest(http.MethodPost, "/", ConfigureRequest{APIKey: "k1"}), st.ID)
	require.NoError(t, f.h.HandleConfigure(c))
	var resp ConfigureResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Configured)
	assert.True(t, resp.Created)
	assert.Equal(t, "mock", resp.Provider)

	c, rec = f.context(jsonRequest(http.MethodPost, "/", ConfigureRequest{APIKey: "k2"}), st.ID)
	require.NoError(t, f.h.HandleConfigure(c))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Created)
}

func TestHandleUpload(t *testing.T) {
	t.Run("requires api key", func(t *testing.T) {
		f := newFixture(t)
		st := f.sessions.Create()
		c, _ := f.context(multipartRequest(t, "a.csv", []byte("x\n1\n"), nil), st.ID)
		requireAPIError(t, f.h.HandleUpload(c), http.StatusPreconditionFailed, CodePrecondition)
		assert.Nil(t, st.Summary())
	})

	t.Run("stores summary", func(t *testing.T) {
		f := newFixture(t)
		st := f.configured(t)
		c, rec := f.context(multipartRequest(t, "users.csv", []byte("id,name\n1,alice\n"), nil), st.ID)
		require.NoError(t, f.h.HandleUpload(c))

		var resp UploadResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Stored)
		require.Len(t, resp.Notifications, 1)
		assert.Equal(t, models.SuccessNotice(models.MsgUploadSucceeded), resp.Notifications[0])
		assert.Contains(t, resp.Summary.Text, "Columns: ['id', 'name']")
	})

	t.Run("sql script", func(t *testing.T) {
		f := newFixture(t)
		st := f.configured(t)
		script := "CREATE TABLE users (id INTEGER, name TEXT); INSERT INTO users VALUES (1, 'alice');"
		c, _ := f.context(multipartRequest(t, "dump.sql", []byte(script), nil), st.ID)
		require.NoError(t, f.h.HandleUpload(c))
		assert.Contains(t, st.Summary().Text, "Sample Data: [(1, 'alice')]")
	})

	t.Run("gzip encoded", func(t *testing.T) {
		f := newFixture(t)
		st := f.configured(t)

		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		_, _ = zw.Write([]byte(`{"users": [{"id": 1}]}`))
		require.NoError(t, zw.Close())

		c, _ := f.context(multipartRequest(t, "users.json", buf.Bytes(), map[string]string{"encoding": "gzip"}), st.ID)
		require.NoError(t, f.h.HandleUpload(c))
		assert.Contains(t, st.Summary().Text, `"users": [`)
	})

	t.Run("disallowed extension", func(t *testing.T) {
		f := newFixture(t)
		st := f.configured(t)
		c, _ := f.context(multipartRequest(t, "notes.txt", []byte("hello"), nil), st.ID)
		requireAPIError(t, f.h.HandleUpload(c), http.StatusUnsupportedMediaType, CodeUnsupportedFileType)
	})

	t.Run("parse error keeps summary", func(t *testing.T) {
		f := newFixture(t)
		st := f.loaded(t)
		before := st.Summary().Text

		c, _ := f.context(multipartRequest(t, "bad.json", []byte("{"), nil), st.ID)
		err := f.h.HandleUpload(c)
		requireAPIError(t, err, http.StatusUnprocessableEntity, CodeParse)
		assert.True(t, strings.HasPrefix(FromError(err).Message, "JSON Error: "))
		assert.Equal(t, before, st.Summary().Text)
	})

	t.Run("empty summary not stored", func(t *testing.T) {
		f := newFixture(t)
		st := f.configured(t)
		c, rec := f.context(multipartRequest(t, "empty.sql", []byte("-- nothing"), nil), st.ID)
		require.NoError(t, f.h.HandleUpload(c))

		var resp UploadResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Stored)
		assert.Empty(t, resp.Notifications)
	})

	t.Run("missing file field", func(t *testing.T) {
		f := newFixture(t)
		st := f.configured(t)
		c, _ := f.context(httptest.NewRequest(http.MethodPost, "/", nil), st.ID)
		requireAPIError(t, f.h.HandleUpload(c), http.StatusBadRequest, CodeValidation)
	})
}

func TestHandleGetSummary(t *testing.T) {
	f := newFixture(t)
	st := f.configured(t)

	c, _ := f.context(httptest.NewRequest(http.MethodGet, "/", nil), st.ID)
	requireAPIError(t, f.h.HandleGetSummary(c), http.StatusPreconditionFailed, CodePrecondition)

	st = f.loaded(t)
	c, rec := f.context(httptest.NewRequest(http.MethodGet, "/", nil), st.ID)
	require.NoError(t, f.h.HandleGetSummary(c))
	assert.Contains(t, rec.Body.String(), `"format":"csv"`)
}

func TestHandleAsk(t *testing.T) {
	t.Run("preconditions", func(t *testing.T) {
		f := newFixture(t)
		st := f.sessions.Create()

		c, _ := f.context(jsonRequest(http.MethodPost, "/", AskRequest{Question: "q"}), st.ID)
		err := f.h.HandleAsk(c)
		requireAPIError(t, err, http.StatusPreconditionFailed, CodePrecondition)
		assert.Equal(t, models.MsgMissingAPIKey, FromError(err).Message)

		st = f.configured(t)
		c, _ = f.context(jsonRequest(http.MethodPost, "/", AskRequest{Question: "q"}), st.ID)
		err = f.h.HandleAsk(c)
		assert.Equal(t, models.MsgMissingSummary, FromError(err).Message)
		assert.Empty(t, st.History())
		assert.Equal(t, 0, f.model.Calls())
	})

	t.Run("answer", func(t *testing.T) {
		f := newFixture(t, testutil.Reply{Text: "alice is user 1"})
		st := f.loaded(t)

		c, rec := f.context(jsonRequest(http.MethodPost, "/", AskRequest{Question: "who is user 1?"}), st.ID)
		require.NoError(t, f.h.HandleAsk(c))

		var resp AskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "alice is user 1", resp.Message.Content)
		assert.Nil(t, resp.Error)

		require.Len(t, f.model.Prompts(), 1)
		prompt := f.model.Prompts()[0]
		assert.Contains(t, prompt, "Columns: ['id', 'name']")
		assert.Contains(t, prompt, "User question: who is user 1?")

		history := st.History()
		require.Len(t, history, 2)
		assert.Equal(t, models.RoleUser, history[0].Role)
		assert.Equal(t, "who is user 1?", history[0].Content)
		assert.Equal(t, models.RoleAssistant, history[1].Role)
		assert.Equal(t, "alice is user 1", history[1].Content)
	})

	t.Run("model failure", func(t *testing.T) {
		f := newFixture(t, testutil.Reply{Err: errors.New("quota exceeded")})
		st := f.loaded(t)

		c, rec := f.context(jsonRequest(http.MethodPost, "/", AskRequest{Question: "who?"}), st.ID)
		require.NoError(t, f.h.HandleAsk(c))

		var resp AskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, llm.FallbackAnswer, resp.Message.Content)
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeModelAPI, resp.Error.Code)
		require.Len(t, resp.Notifications, 1)
		assert.Equal(t, "Error from model API: quota exceeded", resp.Notifications[0].Message)
	})

	t.Run("blank question", func(t *testing.T) {
		f := newFixture(t)
		st := f.loaded(t)
		c, _ := f.context(jsonRequest(http.MethodPost, "/", AskRequest{Question: "  "}), st.ID)
		requireAPIError(t, f.h.HandleAsk(c), http.StatusBadRequest, CodeValidation)
	})
}

func TestHandleGetMessages_MsgpackMatchesJSON(t *testing.T) {
	f := newFixture(t, testutil.Reply{Text: "first"}, testutil.Reply{Text: "second"})
	st := f.loaded(t)
	for _, q := range []string{"one?", "two?"} {
		c, _ := f.context(jsonRequest(http.MethodPost, "/", AskRequest{Question: q}), st.ID)
		require.NoError(t, f.h.HandleAsk(c))
	}

	c, rec := f.context(httptest.NewRequest(http.MethodGet, "/", nil), st.ID)
	require.NoError(t, f.h.HandleGetMessages(c))
	var viaJSON TranscriptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &viaJSON))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAccept, MIMEMsgpack)
	c, rec = f.context(req, st.ID)
	require.NoError(t, f.h.HandleGetMessages(c))
	assert.Equal(t, MIMEMsgpack, rec.Header().Get(echo.HeaderContentType))
	var viaMsgpack TranscriptResponse
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &viaMsgpack))

	require.Len(t, viaJSON.Messages, 4)
	require.Len(t, viaMsgpack.Messages, 4)
	assert.Equal(t, viaJSON.SessionID, viaMsgpack.SessionID)
	for i := range viaJSON.Messages {
		assert.Equal(t, viaJSON.Messages[i].Role, viaMsgpack.Messages[i].Role)
		assert.Equal(t, viaJSON.Messages[i].Content, viaMsgpack.Messages[i].Content)
		assert.True(t, viaJSON.Messages[i].CreatedAt.Equal(viaMsgpack.Messages[i].CreatedAt))
	}
	assert.Equal(t, "second", viaJSON.Messages[3].Content)
}

func TestErrorHandler(t *testing.T) {
	f := newFixture(t)

	c, rec := f.context(httptest.NewRequest(http.MethodGet, "/", nil), "")
	f.e.HTTPErrorHandler(models.ErrMissingSummary, c)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	var body APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodePrecondition, body.Code)
	assert.Equal(t, models.MsgMissingSummary, body.Message)

	c, rec = f.context(httptest.NewRequest(http.MethodGet, "/", nil), "")
	f.e.HTTPErrorHandler(echo.ErrNotFound, c)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	c, rec = f.context(httptest.NewRequest(http.MethodGet, "/", nil), "")
	NewErrorHandler(false)(errors.New("secret internals"), c)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret internals")
}
