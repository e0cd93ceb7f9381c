//go:build tools

package cloudfetch

import (
	_ "gotest.tools/gotestsum"
)
