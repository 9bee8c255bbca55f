package api

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nikmy/mongotx/internal/session"
	"github.com/nikmy/mongotx/internal/template"
	"github.com/nikmy/mongotx/pkg/errors"
	"github.com/nikmy/mongotx/pkg/logger"
	"github.com/nikmy/mongotx/pkg/mongotools"
)

func NewServer(cfg Config, log logger.Logger, tpl *template.Template, gatherer prometheus.Gatherer) Server {
	serveLog := log.With("api_http_server")

	fiberCfg := fiber.Config{
		ReadTimeout:             cfg.HTTP.ReadTimeout,
		WriteTimeout:            cfg.HTTP.WriteTimeout,
		IdleTimeout:             cfg.HTTP.IdleTimeout,
		DisableStartupMessage:   true,
		StreamRequestBody:       true,
		EnableTrustedProxyCheck: true,
		ProxyHeader:             cfg.Proxy.Header,
		TrustedProxies:          cfg.Proxy.Trusted,
		RequestMethods:          []string{fiber.MethodGet, fiber.MethodHead, fiber.MethodPost, fiber.MethodPatch, fiber.MethodDelete},
	}

	fiberCfg.ErrorHandler = func(c *fiber.Ctx, err error) error {
		serveLog.Warn(errors.WrapFail(err, "handle http request"))
		return c.Status(http.StatusInternalServerError).Send(nil)
	}

	s := &server{
		tpl:      tpl,
		gatherer: gatherer,
		http:     fiber.New(fiberCfg),
		addr:     cfg.HTTP.Addr,
		log:      serveLog,
	}

	s.setupRoutes()

	return s
}

type server struct {
	tpl      *template.Template
	gatherer prometheus.Gatherer
	http     *fiber.App
	addr     string
	log      logger.Logger
}

func (s *server) Serve(ctx context.Context) error {
	errCh := make(chan error)
	go func() { errCh <- s.http.Listen(s.addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return errors.Error("serve context done")
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	return errors.WrapFail(s.http.ShutdownWithContext(ctx), "shutdown http server")
}

func (s *server) setupRoutes() {
	s.http.Get("/healthz", s.handleHealth)
	s.http.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	docs := s.http.Group("/collections/:name/documents")
	docs.Post("/", s.handleInsert)
	docs.Get("/", s.handleList)
	docs.Get("/:id", s.handleGet)
	docs.Patch("/:id", s.handleUpdate)
	docs.Delete("/:id", s.handleDelete)
}

func (s *server) handleHealth(c *fiber.Ctx) error {
	err := s.tpl.Database().RunCommand(c.Context(), bson.D{{Key: "ping", Value: 1}}).Err()
	if err != nil {
		s.log.Warn(errors.WrapFail(err, "ping database"))
		return s.sendError(c, http.StatusServiceUnavailable, "database is unreachable")
	}
	return c.JSON(map[string]string{"status": "OK"})
}

// handleInsert stores the document in a transaction and answers with the
// operation time a causal read has to wait for.
func (s *server) handleInsert(c *fiber.Ctx) error {
	var doc bson.M
	err := c.BodyParser(&doc)
	if err != nil {
		s.log.Warn(errors.WrapFail(err, "unmarshal document payload"))
		return s.sendError(c, http.StatusBadRequest, "bad json")
	}

	id, ok := doc["_id"].(string)
	if !ok || id == "" {
		id = uuid.NewString()
		doc["_id"] = id
	}

	var h *session.Handle
	err = s.tpl.InTransaction(c.Context(), func(ctx context.Context, tpl *template.Template) error {
		h, _ = tpl.Store().Current(ctx)
		_, err := tpl.Collection(c.Params("name")).InsertOne(ctx, doc)
		return err
	})
	switch {
	case mongo.IsDuplicateKeyError(err):
		return s.sendError(c, http.StatusConflict, "document already exists")
	case err != nil:
		return errors.WrapFail(err, "insert document")
	}

	resp := map[string]string{"id": id}
	if ts := h.OperationTime(); ts != nil {
		resp["operationTime"] = mongotools.FormatTimestamp(*ts)
	}
	return c.Status(http.StatusCreated).JSON(resp)
}

// handleGet reads the document in a causally consistent session. With
// "after" the read observes everything up to that operation time.
func (s *server) handleGet(c *fiber.Ctx) error {
	var after *primitive.Timestamp
	if raw := c.Query("after"); raw != "" {
		ts, err := mongotools.ParseTimestamp(raw)
		if err != nil {
			s.log.Warn(err)
			return s.sendError(c, http.StatusBadRequest, "malformed \"after\" param")
		}
		after = &ts
	}

	src := template.Opened(session.Options{CausalConsistency: true})
	doc, err := template.ExecuteValue(c.Context(), s.tpl.WithSession(src), func(ctx context.Context, tpl *template.Template) (bson.M, error) {
		if h, ok := tpl.Store().Current(ctx); ok && after != nil {
			h.Advance(after, nil)
		}

		var doc bson.M
		err := tpl.Collection(c.Params("name")).FindOne(ctx, mongotools.FilterByID(c.Params("id"))).Decode(&doc)
		return doc, err
	})
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return s.sendError(c, http.StatusNotFound, "document not found")
	case err != nil:
		return errors.WrapFail(err, "find document")
	}

	return c.JSON(doc)
}

func (s *server) handleList(c *fiber.Ctx) error {
	docs, err := template.ExecuteValue(c.Context(), s.tpl.WithSession(template.Opened(session.Options{CausalConsistency: true})),
		func(ctx context.Context, tpl *template.Template) ([]bson.M, error) {
			cur, err := tpl.Collection(c.Params("name")).Find(ctx, mongotools.All())
			if err != nil {
				return nil, err
			}
			return mongotools.FilterFunc[bson.M](ctx, cur, nil)
		},
	)
	if err != nil {
		return errors.WrapFail(err, "list documents")
	}

	if docs == nil {
		docs = []bson.M{}
	}
	return c.JSON(docs)
}

func (s *server) handleUpdate(c *fiber.Ctx) error {
	var patch bson.M
	err := c.BodyParser(&patch)
	if err != nil {
		s.log.Warn(errors.WrapFail(err, "parse update request"))
		return s.sendError(c, http.StatusBadRequest, "bad patch format")
	}
	delete(patch, "_id")

	var matched int64
	err = s.tpl.InTransaction(c.Context(), func(ctx context.Context, tpl *template.Template) error {
		res, err := tpl.Collection(c.Params("name")).UpdateOne(ctx, mongotools.FilterByID(c.Params("id")), mongotools.SetAll(patch))
		if err != nil {
			return err
		}
		matched = res.MatchedCount
		return nil
	})
	if err != nil {
		return errors.WrapFail(err, "update document")
	}

	if matched == 0 {
		return s.sendError(c, http.StatusNotFound, "document not found")
	}
	return c.Status(http.StatusOK).Send(nil)
}

func (s *server) handleDelete(c *fiber.Ctx) error {
	var deleted int64
	err := s.tpl.InTransaction(c.Context(), func(ctx context.Context, tpl *template.Template) error {
		res, err := tpl.Collection(c.Params("name")).DeleteOne(ctx, mongotools.FilterByID(c.Params("id")))
		if err != nil {
			return err
		}
		deleted = res.DeletedCount
		return nil
	})
	if err != nil {
		return errors.WrapFail(err, "delete document")
	}

	if deleted == 0 {
		return s.sendError(c, http.StatusNotFound, "document not found")
	}
	return c.Status(http.StatusOK).Send(nil)
}

func (s *server) sendError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(map[string]string{"status": "ERROR", "message": msg})
}
