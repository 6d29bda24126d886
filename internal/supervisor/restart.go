package supervisor

import (
	"os"

	"go.uber.org/zap"
)

// ExitRestarter ends the process; the init system brings the daemon back
// up. The watchdog is deliberately not disarmed on this path, so a hang
// between here and the next boot's first feed still reboots the board.
type ExitRestarter struct {
	Log *zap.Logger
}

func (r ExitRestarter) Restart(reason string) {
	r.Log.Info("restarting", zap.String("reason", reason))
	_ = r.Log.Sync()
	os.Exit(1)
}
