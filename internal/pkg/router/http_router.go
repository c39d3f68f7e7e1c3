package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mpellerin42/subsync/app/controllers"
	"github.com/mpellerin42/subsync/internal/pkg/database"
	"github.com/mpellerin42/subsync/internal/pkg/mail"
	"github.com/mpellerin42/subsync/internal/pkg/subscription"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	mailer, err := mail.NewSMTPMailer("views/mails")
	if err != nil {
		panic(err)
	}

	repo := subscription.NewRepository(database.GetDB())
	svc := subscription.NewService(repo, mailer, subscription.ConfigFromEnv())
	wc := controllers.NewWebhookController(repo, svc)

	app.Post("/webhooks/stripe", wc.HandleStripeWebhook)

	app.Get("/up", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
