package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/novara-labs/lib-pluginguard/pluginguard/boundary"
	"github.com/novara-labs/lib-pluginguard/pluginguard/log"
)

// Ping returns HTTP Status 200 with response "pong".
func Ping(c *fiber.Ctx) error {
	return c.SendString("pong")
}

// Admin exposes the operator surface of a watchdog and its registered
// boundaries: health snapshots, forced recovery, manual disable, and health
// reset. The surrounding application decides where to mount it and how to
// authenticate callers.
type Admin struct {
	watchdog *boundary.Watchdog
	logger   log.Logger
}

// NewAdmin creates the administrative handler group for a watchdog.
// A nil logger falls back to a no-op logger.
func NewAdmin(watchdog *boundary.Watchdog, logger log.Logger) *Admin {
	if logger == nil {
		logger = log.NewNop()
	}

	return &Admin{watchdog: watchdog, logger: logger}
}

// RegisterRoutes mounts the administrative endpoints on a fiber router.
func (a *Admin) RegisterRoutes(router fiber.Router) {
	router.Get("/ping", Ping)
	router.Get("/health", a.AllHealth)
	router.Get("/health/:plugin", a.PluginHealth)
	router.Post("/plugins/:plugin/recover", a.ForceRecovery)
	router.Post("/plugins/:plugin/disable", a.Disable)
	router.Post("/plugins/:plugin/reset", a.Reset)
}

// AllHealth returns a health snapshot for every registered plugin boundary.
func (a *Admin) AllHealth(c *fiber.Ctx) error {
	return OK(c, a.watchdog.AllHealth())
}

// PluginHealth returns the health snapshot of one plugin.
func (a *Admin) PluginHealth(c *fiber.Ctx) error {
	name := c.Params("plugin")

	b, ok := a.watchdog.Boundary(name)
	if !ok {
		return NotFound(c, "plugin_not_found", "Plugin Not Found", "no boundary registered for plugin "+name)
	}

	return OK(c, b.Health())
}

// ForceRecovery triggers an out-of-band recovery attempt on one plugin.
func (a *Admin) ForceRecovery(c *fiber.Ctx) error {
	name := c.Params("plugin")

	if _, ok := a.watchdog.Boundary(name); !ok {
		return NotFound(c, "plugin_not_found", "Plugin Not Found", "no boundary registered for plugin "+name)
	}

	recovered := a.watchdog.ForceRecovery(c.UserContext(), name)

	return OK(c, fiber.Map{
		"plugin":    name,
		"recovered": recovered,
	})
}

// disableRequest is the JSON body accepted by Disable.
type disableRequest struct {
	Reason string `json:"reason"`
}

// Disable forces one plugin into the disabled state with no scheduled re-check.
func (a *Admin) Disable(c *fiber.Ctx) error {
	name := c.Params("plugin")

	b, ok := a.watchdog.Boundary(name)
	if !ok {
		return NotFound(c, "plugin_not_found", "Plugin Not Found", "no boundary registered for plugin "+name)
	}

	var req disableRequest
	if err := c.BodyParser(&req); err != nil || req.Reason == "" {
		return BadRequest(c, "missing_reason", "Missing Reason", "a disable reason is required")
	}

	a.logger.Log(c.UserContext(), log.LevelWarn, "operator disabled plugin",
		log.String("plugin", name),
		log.String("reason", req.Reason))

	b.Disable(req.Reason)

	return Accepted(c, b.Health())
}

// Reset forces one plugin's health back to healthy with all counters zeroed.
func (a *Admin) Reset(c *fiber.Ctx) error {
	name := c.Params("plugin")

	b, ok := a.watchdog.Boundary(name)
	if !ok {
		return NotFound(c, "plugin_not_found", "Plugin Not Found", "no boundary registered for plugin "+name)
	}

	a.logger.Log(c.UserContext(), log.LevelInfo, "operator reset plugin health",
		log.String("plugin", name))

	b.ResetHealth()

	return OK(c, b.Health())
}
