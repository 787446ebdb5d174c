package dispatch

import (
	"fmt"
	"sync"

	"premium-watch-go/alert"
)

// HistoryChannel appends every fired alert to the persistent history log.
type HistoryChannel struct {
	store alert.Store
}

// NewHistoryChannel wraps the store.
func NewHistoryChannel(store alert.Store) *HistoryChannel {
	return &HistoryChannel{store: store}
}

func (c *HistoryChannel) Name() string { return "history" }

func (c *HistoryChannel) Send(a Alert) error {
	return c.store.AppendHistory(alert.HistoryEntry{
		Title:   a.Title,
		Body:    a.Body,
		FiredAt: a.FiredAt,
	})
}

// Toast is one pending in-app toast.
type Toast struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// ToastChannel queues in-app toasts for the UI to drain. A toast whose title
// and body exactly match an already-pending one is coalesced away; near
// duplicates with any textual difference stack normally.
type ToastChannel struct {
	mu      sync.Mutex
	pending []Toast
}

// NewToastChannel returns an empty toast queue.
func NewToastChannel() *ToastChannel {
	return &ToastChannel{}
}

func (c *ToastChannel) Name() string { return "toast" }

func (c *ToastChannel) Send(a Alert) error {
	t := Toast{Title: a.Title, Body: a.Body}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pending {
		if p == t {
			return nil
		}
	}
	c.pending = append(c.pending, t)
	return nil
}

// Pending returns a copy of the queued toasts, oldest first.
func (c *ToastChannel) Pending() []Toast {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Toast, len(c.pending))
	copy(out, c.pending)
	return out
}

// Dismiss drops the oldest queued toast matching t. Dismissing a toast that
// is not pending is a no-op.
func (c *ToastChannel) Dismiss(t Toast) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, p := range c.pending {
		if p == t {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}

// Permission mirrors the platform notification permission states.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Notifier abstracts the platform notification surface.
type Notifier interface {
	Permission() Permission
	// RequestPermission prompts the user and returns the resulting state.
	RequestPermission() (Permission, error)
	Show(title, body string) error
}

// NotifyChannel shows platform notifications when permitted. Permission
// semantics: granted shows immediately, denied drops silently, default
// triggers one request and shows only if the user grants it.
type NotifyChannel struct {
	notifier Notifier
}

// NewNotifyChannel wraps the platform notifier.
func NewNotifyChannel(n Notifier) *NotifyChannel {
	return &NotifyChannel{notifier: n}
}

func (c *NotifyChannel) Name() string { return "notify" }

func (c *NotifyChannel) Send(a Alert) error {
	switch c.notifier.Permission() {
	case PermissionGranted:
		return c.notifier.Show(a.Title, a.Body)
	case PermissionDenied:
		return nil
	default:
		p, err := c.notifier.RequestPermission()
		if err != nil {
			return fmt.Errorf("request notification permission: %w", err)
		}
		if p != PermissionGranted {
			return nil
		}
		return c.notifier.Show(a.Title, a.Body)
	}
}

// Player abstracts alert audio playback.
type Player interface {
	Play() error
}

// SoundChannel plays the alert sound, but only after the user has interacted
// with the app at least once. Autoplay before any interaction is blocked by
// the platform, so alerts arriving earlier stay silent without error.
type SoundChannel struct {
	player     Player
	mu         sync.Mutex
	interacted bool
}

// NewSoundChannel wraps the audio player.
func NewSoundChannel(p Player) *SoundChannel {
	return &SoundChannel{player: p}
}

func (c *SoundChannel) Name() string { return "sound" }

// MarkInteracted records the first user interaction, unlocking playback.
func (c *SoundChannel) MarkInteracted() {
	c.mu.Lock()
	c.interacted = true
	c.mu.Unlock()
}

func (c *SoundChannel) Send(Alert) error {
	c.mu.Lock()
	ok := c.interacted
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return c.player.Play()
}
