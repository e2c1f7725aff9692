package testing

import (
	"os"

	"github.com/jasonlryan/demucs/src/shared/config/envvar"
	"github.com/jasonlryan/demucs/src/shared/lib/env"
	"github.com/onsi/gomega"
)

func SetTestEnv() {
	err := os.Setenv(envvar.ENVIRONMENT, string(env.Test))
	gomega.ExpectWithOffset(1, err).NotTo(gomega.HaveOccurred())
}
