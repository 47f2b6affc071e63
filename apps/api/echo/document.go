package echoapi

import (
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/document"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/storage/object"
)

var errDocNotFoundInCtx = errors.New("document object not found in echo.Context")

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	maxAttachmentLen = 20 << 20 // 20 MiB
)

type documentApi struct {
	conf    *core.Config
	logger  core.Logger
	userSvc *user.Service
	svc     *document.Service
	storage object.Storage

	upgrader websocket.Upgrader
}

func registerDocumentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := documentApi{
		conf:    deps.Conf,
		logger:  deps.Logger,
		userSvc: deps.UserSvc,
		svc:     deps.DocSvc,
		storage: deps.Storage,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	dg := g.Group("/documents", jwt)
	dg.POST("", api.create)
	dg.GET("", api.query)
	dg.GET("/watch", api.watch)

	// detail endpoints
	ig := dg.Group("/:id", documentAccessMiddleware(api.userSvc, api.svc))
	ig.GET("", api.retrieve)
	ig.PUT("", api.rename, documentOwnerMiddleware(api.userSvc))
	ig.PUT("/content", api.updateContent)
	ig.DELETE("", api.destroy, documentOwnerMiddleware(api.userSvc))
	ig.POST("/share", api.share)
	ig.GET("/export", api.export)
	ig.POST("/attachments", api.uploadAttachment)
}

// Handlers

func (api *documentApi) create(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data document.NewDocument
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDocument")
	}
	data.OwnerID = ctxUsr.ID
	data.OwnerRole = ctxUsr.MaxRole()
	data.SchoolID = ctxUsr.SchoolID
	if err := data.Validate(); err != nil {
		return err
	}

	doc, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating document")
	}
	return ctx.JSON(http.StatusCreated, doc)
}

func (api *documentApi) query(ctx echo.Context) error {
	filter, err := api.contextFilter(ctx)
	if err != nil {
		return err
	}

	docs, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying documents")
	}
	if docs == nil {
		docs = []document.Document{}
	}
	return ctx.JSON(http.StatusOK, docs)
}

func (api *documentApi) retrieve(ctx echo.Context) error {
	doc, ok := ctx.Get("object").(document.Document)
	if !ok {
		return errors.Wrap(errDocNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, doc)
}

func (api *documentApi) rename(ctx echo.Context) error {
	doc, ok := ctx.Get("object").(document.Document)
	if !ok {
		return errors.Wrap(errDocNotFoundInCtx, "retrieving object from context")
	}

	var data document.RenameDocument
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RenameDocument")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	doc, err := api.svc.Rename(ctx.Request().Context(), doc.ID, data)
	if err != nil {
		return errors.Wrap(err, "renaming document")
	}
	return ctx.JSON(http.StatusOK, doc)
}

func (api *documentApi) updateContent(ctx echo.Context) error {
	doc, ok := ctx.Get("object").(document.Document)
	if !ok {
		return errors.Wrap(errDocNotFoundInCtx, "retrieving object from context")
	}
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data UpdateContentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateContentRequest")
	}
	if data.Title == "" {
		data.Title = doc.Title
	}

	updated, err := api.svc.UpdateContent(ctx.Request().Context(), document.UpdateContent{
		DocID:       doc.ID,
		UpdatedBy:   ctxUsr.ID,
		NewTitle:    data.Title,
		Content:     data.Content,
		BumpVersion: data.BumpVersion,
	})
	if err != nil {
		return errors.Wrap(err, "updating document content")
	}
	return ctx.JSON(http.StatusOK, updated)
}

func (api *documentApi) destroy(ctx echo.Context) error {
	doc, ok := ctx.Get("object").(document.Document)
	if !ok {
		return errors.Wrap(errDocNotFoundInCtx, "retrieving object from context")
	}
	if err := api.svc.Delete(ctx.Request().Context(), doc.ID); err != nil {
		return errors.Wrap(err, "deleting document")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *documentApi) share(ctx echo.Context) error {
	doc, ok := ctx.Get("object").(document.Document)
	if !ok {
		return errors.Wrap(errDocNotFoundInCtx, "retrieving object from context")
	}
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data document.ShareDocument
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ShareDocument")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	if err := api.svc.Share(ctx.Request().Context(), doc.ID, ctxUsr.Name, data); err != nil {
		return errors.Wrap(err, "sharing document")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Document shared."})
}

// export streams the document in the requested format; `?format=csv` is only
// valid for sheets, `?format=html` works for every kind.
func (api *documentApi) export(ctx echo.Context) error {
	doc, ok := ctx.Get("object").(document.Document)
	if !ok {
		return errors.Wrap(errDocNotFoundInCtx, "retrieving object from context")
	}

	switch format := ctx.QueryParam("format"); format {
	case "csv":
		ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", doc.Title+".csv"))
		ctx.Response().Header().Set(echo.HeaderContentType, "text/csv")
		ctx.Response().WriteHeader(http.StatusOK)
		return api.trapExportErr(document.ExportCSV(ctx.Response(), doc.Content))
	case "", "html":
		ctx.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
		ctx.Response().WriteHeader(http.StatusOK)
		return api.trapExportErr(document.ExportHTML(ctx.Response(), doc))
	default:
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown export format %q", format))
	}
}

func (api *documentApi) trapExportErr(err error) error {
	if errors.Cause(err) == document.ErrKindMismatch {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return err
}

func (api *documentApi) uploadAttachment(ctx echo.Context) error {
	doc, ok := ctx.Get("object").(document.Document)
	if !ok {
		return errors.Wrap(errDocNotFoundInCtx, "retrieving object from context")
	}

	fh, err := ctx.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing `file` form field")
	}
	if fh.Size > maxAttachmentLen {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "attachment too large")
	}

	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening attachment upload")
	}
	defer func() { _ = f.Close() }()

	key := path.Join(doc.ID, uuid.New().String()+path.Ext(fh.Filename))
	url, err := api.storage.Upload(ctx.Request().Context(), key, f)
	if err != nil {
		return errors.Wrap(err, "uploading attachment")
	}
	return ctx.JSON(http.StatusCreated, AttachmentResponse{Key: key, URL: url})
}

// watch upgrades to a websocket and pushes a full directory snapshot on
// every remote change until the client goes away.
func (api *documentApi) watch(ctx echo.Context) error {
	filter, err := api.contextFilter(ctx)
	if err != nil {
		return err
	}

	watch, err := api.svc.Watch(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "starting document watch")
	}

	conn, err := api.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		watch.Stop()
		return errors.Wrap(err, "upgrading connection")
	}
	defer func() { _ = conn.Close() }()
	defer watch.Stop()

	// reader only exists to notice the peer closing
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case err, ok := <-watch.Err():
			if !ok {
				return nil
			}
			api.logger.Error("document watch failed", err)
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "watch failed"), time.Now().Add(wsWriteWait))
			return nil
		case docs, ok := <-watch.Snapshots():
			if !ok {
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(DirectorySnapshot{Documents: docs}); err != nil {
				return nil
			}
		}
	}
}

// contextFilter builds the visibility triple off the authenticated user.
func (api *documentApi) contextFilter(ctx echo.Context) (document.QueryFilter, error) {
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return document.QueryFilter{}, errors.Wrap(err, "getting context user")
	}
	return document.QueryFilter{UserID: ctxUsr.ID, Role: ctxUsr.MaxRole(), SchoolID: ctxUsr.SchoolID}, nil
}

type (
	UpdateContentRequest struct {
		Title       string           `json:"title"`
		Content     document.Content `json:"content"`
		BumpVersion bool             `json:"bump_version"`
	}

	AttachmentResponse struct {
		Key string `json:"key"`
		URL string `json:"url"`
	}

	DirectorySnapshot struct {
		Documents []document.Document `json:"documents"`
	}
)
