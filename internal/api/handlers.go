package api

import (
	"net/http"
	"strings"

	"github.com/db-query-assistant/backend/internal/models"
	"github.com/db-query-assistant/backend/internal/session"
	"github.com/db-query-assistant/backend/internal/upload"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// MIMEMsgpack selects the MessagePack transcript encoding.
const MIMEMsgpack = "application/msgpack"

// Handler handles the JSON session API.
type Handler struct {
	sessions *session.Manager
	service  *session.Service
	intake   *upload.Intake
}

// NewHandler creates a new API handler.
func NewHandler(sessions *session.Manager, service *session.Service, intake *upload.Intake) *Handler {
	return &Handler{
		sessions: sessions,
		service:  service,
		intake:   intake,
	}
}

// ConfigureRequest carries the API key.
type ConfigureRequest struct {
	APIKey string `json:"apiKey" form:"apiKey"`
}

// ConfigureResponse reports the handler state after a configure call.
type ConfigureResponse struct {
	Configured bool   `json:"configured"`
	Created    bool   `json:"created"`
	Provider   string `json:"provider,omitempty"`
	Model      string `json:"model,omitempty"`
}

// UploadResponse reports the outcome of an upload.
type UploadResponse struct {
	Stored        bool                    `json:"stored"`
	Summary       *models.DatabaseSummary `json:"summary,omitempty"`
	Notifications []models.Notification   `json:"notifications"`
}

// AskRequest carries one chat question.
type AskRequest struct {
	Question string `json:"question" form:"question"`
}

// AskResponse carries the assistant's reply. When the model call failed,
// Message holds the fallback answer and Error the real cause.
type AskResponse struct {
	Message       models.ChatMessage    `json:"message"`
	Notifications []models.Notification `json:"notifications"`
	Error         *APIError             `json:"error,omitempty"`
}

// TranscriptResponse is the transcript export, in JSON or MessagePack.
type TranscriptResponse struct {
	SessionID string               `json:"sessionId" msgpack:"sessionId"`
	Messages  []models.ChatMessage `json:"messages" msgpack:"messages"`
}

func (h *Handler) lookup(c echo.Context) (*session.State, error) {
	id := c.Param("id")
	if id == "" {
		return nil, NewValidationError("id")
	}
	st, ok := h.sessions.Get(id)
	if !ok {
		return nil, NewNotFoundError("session", id)
	}
	return st, nil
}

// HandleCreateSession creates an empty session.
func (h *Handler) HandleCreateSession(c echo.Context) error {
	st := h.sessions.Create()
	return c.JSON(http.StatusCreated, st.Snapshot())
}

// HandleGetSession returns a session snapshot.
func (h *Handler) HandleGetSession(c echo.Context) error {
	st, err := h.lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st.Snapshot())
}

// HandleDeleteSession drops a session and releases its model handler.
func (h *Handler) HandleDeleteSession(c echo.Context) error {
	st, err := h.lookup(c)
	if err != nil {
		return err
	}
	h.sessions.Delete(st.ID)
	return c.NoContent(http.StatusNoContent)
}

// HandleConfigure binds an API key to the session's model handler.
func (h *Handler) HandleConfigure(c echo.Context) error {
	st, err := h.lookup(c)
	if err != nil {
		return err
	}

	var req ConfigureRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if strings.TrimSpace(req.APIKey) == "" {
		return NewValidationError("apiKey")
	}

	created, err := h.service.Configure(c.Request().Context(), st, req.APIKey)
	if err != nil {
		return err
	}

	snap := st.Snapshot()
	return c.JSON(http.StatusOK, ConfigureResponse{
		Configured: snap.Configured,
		Created:    created,
		Provider:   snap.Provider,
		Model:      snap.Model,
	})
}

// HandleUpload accepts one multipart file in the "file" field. The optional
// "encoding" field (or query parameter) set to gzip marks a compressed body.
func (h *Handler) HandleUpload(c echo.Context) error {
	st, err := h.lookup(c)
	if err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return NewValidationError("file")
	}
	encoding := c.FormValue("encoding")
	if encoding == "" {
		encoding = c.QueryParam("encoding")
	}

	file, err := h.intake.FromMultipart(fh, encoding)
	if err != nil {
		return err
	}

	summary, err := h.service.Upload(c.Request().Context(), st, file)
	if err != nil {
		return err
	}

	resp := UploadResponse{Notifications: []models.Notification{}}
	if summary != nil {
		resp.Stored = true
		resp.Summary = summary
		resp.Notifications = append(resp.Notifications, models.SuccessNotice(models.MsgUploadSucceeded))
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleGetSummary returns the current database summary.
func (h *Handler) HandleGetSummary(c echo.Context) error {
	st, err := h.lookup(c)
	if err != nil {
		return err
	}
	summary := st.Summary()
	if summary == nil {
		return models.ErrMissingSummary
	}
	return c.JSON(http.StatusOK, summary)
}

// HandleGetMessages returns the transcript. Clients sending
// "Accept: application/msgpack" get MessagePack instead of JSON.
func (h *Handler) HandleGetMessages(c echo.Context) error {
	st, err := h.lookup(c)
	if err != nil {
		return err
	}

	resp := TranscriptResponse{SessionID: st.ID, Messages: st.History()}

	if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), MIMEMsgpack) {
		data, err := msgpack.Marshal(resp)
		if err != nil {
			return NewInternalError("failed to encode msgpack", err)
		}
		return c.Blob(http.StatusOK, MIMEMsgpack, data)
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleAsk runs one question through the model.
func (h *Handler) HandleAsk(c echo.Context) error {
	st, err := h.lookup(c)
	if err != nil {
		return err
	}

	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	resp, err := h.ask(c, st, req.Question)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// ask returns an error only when the question was refused. A failed model
// call is reported inside the response next to the fallback answer.
func (h *Handler) ask(c echo.Context, st *session.State, question string) (*AskResponse, error) {
	reply, err := h.service.Ask(c.Request().Context(), st, question)
	if err != nil && reply.Content == "" {
		return nil, err
	}

	resp := &AskResponse{Message: reply, Notifications: []models.Notification{}}
	if err != nil {
		resp.Error = FromError(err)
		resp.Notifications = append(resp.Notifications, models.NoticeFor(err))
	}
	return resp, nil
}
