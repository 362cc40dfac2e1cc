package routes

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/liip/sheriff"
)

func groups(c *fiber.Ctx) []string {
	if c.QueryBool("detail", false) {
		return []string{"basic", "detailed"}
	}
	return []string{"basic"}
}

func sendReduced(c *fiber.Ctx, name string, value interface{}) error {
	reduced, err := sheriff.Marshal(&sheriff.Options{
		Groups: groups(c),
	}, value)
	if err != nil {
		c.SendStatus(fiber.StatusInternalServerError)
		return c.JSON(fiber.Map{
			"error": "Sherrif could not reduce " + name,
		})
	}

	return c.JSON(reduced)
}

func sendError(c *fiber.Ctx, status int, message string) error {
	c.SendStatus(status)
	return c.JSON(fiber.Map{
		"error": message,
	})
}

var validate = validator.New()
