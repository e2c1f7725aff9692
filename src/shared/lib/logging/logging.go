package logging

import (
	"os"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/json"
	"github.com/jasonlryan/demucs/src/shared/config/envvar"
	"github.com/jasonlryan/demucs/src/shared/lib/env"
)

// Setup logs JSON lines in production and coloured text otherwise.
func Setup() {
	if env.Get() == env.Production {
		log.SetHandler(json.New(os.Stderr))
	} else {
		log.SetHandler(cli.New(os.Stderr))
	}

	level, err := log.ParseLevel(envvar.GetOr(envvar.LOG_LEVEL, "info"))
	if err != nil {
		log.WithError(err).Warn("Unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
