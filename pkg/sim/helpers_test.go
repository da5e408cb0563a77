package sim

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/legocar.go/pkg/lctp"
)

func mustParse(t *testing.T, line string) *lctp.Request {
	req, err := lctp.ParseRequest(line)
	require.NoError(t, err)
	return req
}
