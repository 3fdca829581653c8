package repository

import (
	"os"
	"testing"

	"github.com/geomark27/autumn-api/internal/testutil/dblock"
	"github.com/joho/godotenv"
)

func TestMain(m *testing.M) {
	_ = godotenv.Load("../../.env") // Load from root
	release := dblock.Acquire()
	code := m.Run()
	release()
	os.Exit(code)
}
