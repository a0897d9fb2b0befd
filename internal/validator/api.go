package validator

import (
	"bufio"
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"github.com/datura-labs/argus/internal/config"
	"github.com/datura-labs/argus/internal/dispatch"
	"github.com/datura-labs/argus/internal/selector"
)

const accessKeyHeader = "X-Access-Key"

// Server exposes the organic query API: live searches fan out to workers with
// results streamed back line by line, plus a read endpoint for the current
// reputation snapshot.
type Server struct {
	app       *fiber.App
	cfg       *config.ServerEnvConfig
	validator *Validator
}

// searchRequest is one live user query. Strategy defaults to RANDOM.
type searchRequest struct {
	Prompt   string   `json:"prompt"`
	Tools    []string `json:"tools,omitempty"`
	Strategy string   `json:"strategy,omitempty"`
	UIDs     []int64  `json:"uids,omitempty"`
}

// searchEvent is one streamed line of a search response.
type searchEvent struct {
	TaskID     string  `json:"task_id"`
	UID        int64   `json:"uid"`
	Completion string  `json:"completion,omitempty"`
	Items      any     `json:"items,omitempty"`
	Latency    float64 `json:"latency_secs,omitempty"`
	Error      string  `json:"error,omitempty"`
}

func NewServer(cfg *config.ServerEnvConfig, v *Validator) *Server {
	app := fiber.New(fiber.Config{
		JSONEncoder: sonic.Marshal,
		JSONDecoder: sonic.Unmarshal,
		BodyLimit:   cfg.BodySizeLimit,
	})
	app.Use(recover.New())
	app.Use(ZstdMiddleware())

	s := &Server{app: app, cfg: cfg, validator: v}

	app.Get("/healthcheck", s.handleHealthcheck)
	app.Get("/reputation", s.requireAccessKey, s.handleReputation)
	app.Post("/search", s.requireAccessKey, s.handleSearch)

	return s
}

// requireAccessKey rejects requests without the configured access key. An
// empty configured key means the check is disabled, which is only sane in dev.
func (s *Server) requireAccessKey(c *fiber.Ctx) error {
	if s.cfg.AccessKey == "" {
		return c.Next()
	}
	if c.Get(accessKeyHeader) != s.cfg.AccessKey {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid access key"})
	}
	return c.Next()
}

func (s *Server) handleHealthcheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"block":  s.validator.State.Block(),
	})
}

func (s *Server) handleReputation(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"step":   s.validator.Store.Step(),
		"scores": s.validator.Store.Snapshot(),
	})
}

// handleSearch runs one organic round and streams newline-delimited JSON
// events, one per worker, as responses arrive.
func (s *Server) handleSearch(c *fiber.Ctx) error {
	var req searchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	}
	if req.Prompt == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "prompt is required"})
	}

	strategy := selector.Strategy(req.Strategy)
	switch strategy {
	case "":
		strategy = selector.StrategyRandom
	case selector.StrategyRandom, selector.StrategyAll, selector.StrategySpecified:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": fmt.Sprintf("unknown strategy %q", req.Strategy)})
	}

	params := OrganicParams{
		Prompt:        req.Prompt,
		Tools:         req.Tools,
		Strategy:      strategy,
		SpecifiedUIDs: req.UIDs,
	}

	v := s.validator
	c.Set(fiber.HeaderContentType, "application/x-ndjson")
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithTimeout(v.Ctx, v.Config.ClientTimeout+5*time.Second)
		defer cancel()

		task, err := v.OrganicRound(ctx, params, func(result dispatch.Result) {
			writeEvent(w, resultEvent(result))
		})
		if err != nil {
			writeEvent(w, searchEvent{TaskID: task.TaskID, Error: err.Error()})
		}
	})
	return nil
}

func resultEvent(result dispatch.Result) searchEvent {
	ev := searchEvent{UID: result.UID}
	if result.Err != nil {
		ev.Error = result.Err.Error()
		return ev
	}
	ev.Completion = result.Response.Completion
	if len(result.Response.Items) > 0 {
		ev.Items = result.Response.Items
	}
	ev.Latency = result.Response.Latency
	return ev
}

func writeEvent(w *bufio.Writer, ev searchEvent) {
	b, err := sonic.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal search event")
		return
	}
	b = append(b, '\n')
	if _, err := w.Write(b); err != nil {
		log.Debug().Err(err).Msg("client disconnected mid-stream")
		return
	}
	if err := w.Flush(); err != nil {
		log.Debug().Err(err).Msg("client disconnected mid-stream")
	}
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		if err := s.app.Listen(addr); err != nil {
			log.Error().Err(err).Msg("api server listen failed")
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(shutdownCtx)
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App { return s.app }
