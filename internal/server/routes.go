package server

import (
	"github.com/gofiber/fiber/v2"

	"cardmarket/internal/core/listing"
	"cardmarket/internal/core/live"
	"cardmarket/internal/health"
)

type Dependencies struct {
	Listings *listing.Handler
	Events   *live.Handler
	Health   *health.HealthHandler
}

func RegisterRoutes(app *fiber.App, d Dependencies) {
	app.Get("/v1/health", health.HealthLimiter(), d.Health.HandleHealth)

	api := app.Group("/v1")

	api.Get("/events", d.Events.HandleEvents)

	api.Get("/listings", d.Listings.HandleList)
	api.Get("/listings/mine", d.Listings.HandleListMine)
	api.Get("/listings/:id", d.Listings.HandleGet)
	api.Post("/listings", d.Listings.HandleCreate)
	api.Post("/listings/batch", d.Listings.HandleCreateBatch)
	api.Patch("/listings/:id", d.Listings.HandleUpdate)
	api.Delete("/listings/:id", d.Listings.HandleDelete)
	api.Post("/listings/:id/enrich", d.Listings.HandleEnrich)
}
