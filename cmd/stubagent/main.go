// Command stubagent runs the development chat backend.
package main

import (
	"fmt"
	"log"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/procurechat/pochat/config"
	"github.com/procurechat/pochat/store"
	"github.com/procurechat/pochat/stubagent"
)

func main() {
	cfg := config.Load()

	log.Printf("Starting stub agent...")
	log.Printf("HTTP Port: %d", cfg.StubHTTPPort)
	log.Printf("Database: %s", cfg.StubDatabaseURL)

	catalog, err := store.NewSQLiteStore(cfg.StubDatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize catalog store: %v", err)
	}
	defer catalog.Close()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	h := stubagent.NewHandler(catalog)
	h.RegisterRoutes(e)

	if err := e.Start(fmt.Sprintf(":%d", cfg.StubHTTPPort)); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
