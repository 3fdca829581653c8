package audit

import (
	"os"
	"testing"

	"github.com/geomark27/autumn-api/internal/testutil/dblock"
)

func TestMain(m *testing.M) {
	release := dblock.Acquire()
	code := m.Run()
	release()
	os.Exit(code)
}
