package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shopledger/shopledger/internal/app"
	_ "github.com/shopledger/shopledger/internal/testing/guard"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	main()
}
