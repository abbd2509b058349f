package observability

import (
	"testing"

	"github.com/taskflowio/ltq/internal/config"
)

func TestSetupLogger_InfoAndDebug(t *testing.T) {
	lg := SetupLogger(config.Config{LogLevel: "info"})
	if lg == nil {
		t.Fatalf("nil logger")
	}
	lg2 := SetupLogger(config.Config{LogLevel: "debug"})
	if lg2 == nil {
		t.Fatalf("nil logger debug")
	}
}
