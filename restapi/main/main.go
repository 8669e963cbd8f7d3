// Listora admin service: wires the registry, the backend client and the
// write orchestrator behind the admin REST API.
package main

import (
	"fmt"
	log "log/slog"
	"os"

	"github.com/listora/listora"
	"github.com/listora/listora/commands"
	"github.com/listora/listora/lock"
	"github.com/listora/listora/registry"
	"github.com/listora/listora/restapi"
	"github.com/listora/listora/sheets"
	"github.com/listora/listora/write"
)

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	listora.ConfigureLogging()

	opts := listora.DefaultOptions()
	if path := os.Getenv("LISTORA_CONFIG"); path != "" {
		var err error
		if opts, err = listora.LoadOptions(path); err != nil {
			log.Error(err.Error())
			os.Exit(1)
		}
	}

	baseURL := os.Getenv("LISTORA_BACKEND_URL")
	documentID := os.Getenv("LISTORA_DOCUMENT_ID")
	if baseURL == "" || documentID == "" {
		log.Error("LISTORA_BACKEND_URL and LISTORA_DOCUMENT_ID are required")
		os.Exit(1)
	}
	store := sheets.NewClient(baseURL, documentID, os.Getenv("LISTORA_BACKEND_TOKEN"))

	reg, err := registry.Open(env("LISTORA_DB", "listora.db"))
	if err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
	defer reg.Close()

	orch := write.NewOrchestrator(store, lock.NewManager(opts.LockTimeout), opts)
	svc := commands.NewService(store, orch, reg)

	addr := env("LISTORA_ADDR", ":8080")
	log.Info("listora admin API listening", "addr", addr)
	if err := restapi.NewServer(svc, reg).Router().Run(addr); err != nil {
		log.Error(fmt.Sprintf("server stopped: %v", err))
		os.Exit(1)
	}
}
