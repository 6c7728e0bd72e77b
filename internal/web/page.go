package web

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/db-query-assistant/backend/internal/models"
	"github.com/db-query-assistant/backend/internal/pkg/logger"
	"github.com/db-query-assistant/backend/internal/session"
	"github.com/db-query-assistant/backend/internal/upload"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// DefaultTitle is the page heading.
const DefaultTitle = "Database Query Assistant"

// PageData is what index.html renders.
type PageData struct {
	Title         string
	Accept        string
	Configured    bool
	Provider      string
	Model         string
	Summary       *models.DatabaseSummary
	Messages      []models.ChatMessage
	Notifications []models.Notification
}

// PageHandler drives the browser interface. Every POST runs one interaction
// cycle over whichever inputs the form carried, then renders the page.
type PageHandler struct {
	sessions   *session.Manager
	service    *session.Service
	intake     *upload.Intake
	cookieName string
	title      string
}

// NewPageHandler creates the page handler.
func NewPageHandler(sessions *session.Manager, service *session.Service, intake *upload.Intake, cookieName string) *PageHandler {
	if cookieName == "" {
		cookieName = "dbqa_session"
	}
	return &PageHandler{
		sessions:   sessions,
		service:    service,
		intake:     intake,
		cookieName: cookieName,
		title:      DefaultTitle,
	}
}

// RegisterRoutes mounts the page and its form targets.
func (p *PageHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", p.HandleIndex)
	e.POST("/", p.HandleCycle)
	e.POST("/config", p.HandleCycle)
	e.POST("/upload", p.HandleCycle)
	e.POST("/ask", p.HandleCycle)
}

// HandleIndex renders the page for the cookie's session.
func (p *PageHandler) HandleIndex(c echo.Context) error {
	st := p.ensureSession(c)
	return p.render(c, st, nil)
}

// HandleCycle runs configure, upload and ask in that order. A failed step
// adds a notification; a failed precondition on ask stops the cycle.
func (p *PageHandler) HandleCycle(c echo.Context) error {
	ctx := c.Request().Context()
	st := p.ensureSession(c)
	log := logger.FromContext(ctx).With(zap.String("session_id", st.ID))

	var notices []models.Notification

	if key := c.FormValue("api_key"); key != "" {
		if _, err := p.service.Configure(ctx, st, key); err != nil {
			notices = append(notices, models.NoticeFor(err))
		}
	}

	if fh, err := c.FormFile("file"); err == nil {
		notices = append(notices, p.upload(c, st, fh)...)
	} else if !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
		log.Debug("reading upload field", zap.Error(err))
	}

	if question := c.FormValue("question"); strings.TrimSpace(question) != "" {
		if _, err := p.service.Ask(ctx, st, question); err != nil {
			notices = append(notices, models.NoticeFor(err))
		}
	}

	return p.render(c, st, notices)
}

func (p *PageHandler) upload(c echo.Context, st *session.State, fh *multipart.FileHeader) []models.Notification {
	file, err := p.intake.FromMultipart(fh, c.FormValue("encoding"))
	if err != nil {
		return []models.Notification{models.NoticeFor(err)}
	}

	summary, err := p.service.Upload(c.Request().Context(), st, file)
	if err != nil {
		return []models.Notification{models.NoticeFor(err)}
	}
	if summary == nil {
		return nil
	}
	return []models.Notification{models.SuccessNotice(models.MsgUploadSucceeded)}
}

// ensureSession resolves the cookie to a session, creating one and setting
// the cookie when it is missing or stale.
func (p *PageHandler) ensureSession(c echo.Context) *session.State {
	var id string
	if cookie, err := c.Cookie(p.cookieName); err == nil {
		id = cookie.Value
	}

	st, created := p.sessions.Ensure(id)
	if created {
		c.SetCookie(&http.Cookie{
			Name:     p.cookieName,
			Value:    st.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return st
}

func (p *PageHandler) render(c echo.Context, st *session.State, notices []models.Notification) error {
	snap := st.Snapshot()
	return c.Render(http.StatusOK, "index.html", PageData{
		Title:         p.title,
		Accept:        strings.Join(p.intake.Extensions(), ","),
		Configured:    snap.Configured,
		Provider:      snap.Provider,
		Model:         snap.Model,
		Summary:       snap.Summary,
		Messages:      snap.Messages,
		Notifications: notices,
	})
}
