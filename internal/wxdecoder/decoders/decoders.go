// Package decoders imports every weather decoder to trigger its init()
// registration. Import this package for side effects only.
package decoders

import (
	_ "wxaloft/internal/wxdecoder/h2wind"
	_ "wxaloft/internal/wxdecoder/posn"
)
