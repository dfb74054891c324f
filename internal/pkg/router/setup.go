package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/MarkusWeidner/ImmoFox/internal/pkg/middleware"
	"github.com/MarkusWeidner/ImmoFox/internal/pkg/session"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

func InstallRouter(app *fiber.App) {
	// init session store before anything reads it
	session.NewSessionStore()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	setup(app, NewApiRouter())
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
