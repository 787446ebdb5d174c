package dispatch

import (
	"sync"

	"go.uber.org/zap"

	"premium-watch-go/infrastructure/logger"
)

// LogNotifier is the headless Notifier: it records the permission state and
// writes notifications to the log. Deployments with a real desktop surface
// swap in their own Notifier. Dispatch runs from both the engine's
// evaluation loop and the registry's post-add goroutine, so the permission
// state is mutex-guarded.
type LogNotifier struct {
	log *logger.Logger

	mu   sync.Mutex
	perm Permission
}

// NewLogNotifier starts in the given permission state.
func NewLogNotifier(log *logger.Logger, perm Permission) *LogNotifier {
	if log == nil {
		log = logger.Nop()
	}
	if perm == "" {
		perm = PermissionDefault
	}
	return &LogNotifier{log: log.Named("notify"), perm: perm}
}

func (n *LogNotifier) Permission() Permission {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.perm
}

// RequestPermission auto-grants: a headless deployment has no user to ask.
func (n *LogNotifier) RequestPermission() (Permission, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.perm = PermissionGranted
	return n.perm, nil
}

func (n *LogNotifier) Show(title, body string) error {
	n.log.Info("notification",
		zap.String("title", title), zap.String("body", body))
	return nil
}

// LogPlayer is the headless Player: it logs instead of playing audio.
type LogPlayer struct {
	log *logger.Logger
}

// NewLogPlayer wraps the log sink.
func NewLogPlayer(log *logger.Logger) *LogPlayer {
	if log == nil {
		log = logger.Nop()
	}
	return &LogPlayer{log: log.Named("sound")}
}

func (p *LogPlayer) Play() error {
	p.log.Info("alert sound")
	return nil
}
