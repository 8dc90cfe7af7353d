// Package guard switches binaries into test mode when imported from tests.
package guard

import (
	"os"
	"sync"
)

// EnvVar is read by app.InTestMode.
const EnvVar = "SHOPLEDGER_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(EnvVar) == "" {
			_ = os.Setenv(EnvVar, "1")
		}
	})
}
