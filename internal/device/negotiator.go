package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/tapehead/tapehead/pkg/collections"
)

// ErrNoInputDevice is returned when negotiation finds no capture
// devices at all. Anything short of that degrades instead of failing.
var ErrNoInputDevice = errors.New("no capture devices available")

// Kind classifies a capture device by its transport/placement.
// miniaudio exposes no port type, so classification is by device name;
// unclassified devices stay eligible as the last-resort fallback.
type Kind int

const (
	KindUnknown Kind = iota
	KindUSB
	KindHeadset
	KindBuiltIn
)

func (k Kind) String() string {
	switch k {
	case KindUSB:
		return "usb"
	case KindHeadset:
		return "headset"
	case KindBuiltIn:
		return "built-in"
	default:
		return "unknown"
	}
}

// rank orders kinds by selection preference, lower is better.
func (k Kind) rank() int {
	switch k {
	case KindUSB:
		return 0
	case KindHeadset:
		return 1
	case KindBuiltIn:
		return 2
	default:
		return 3
	}
}

// Descriptor describes one capture device as reported by the hardware
// layer. It is read-only to everything above the device package.
type Descriptor struct {
	ID          malgo.DeviceID
	Name        string
	Kind        Kind
	IsDefault   bool
	MaxChannels int
	SampleRate  int
	Formats     []string
}

// ClassifyKind derives a device kind from its reported name.
func ClassifyKind(name string) Kind {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "usb"):
		return KindUSB
	case strings.Contains(lower, "headset"), strings.Contains(lower, "headphone"):
		return KindHeadset
	case strings.Contains(lower, "built-in"), strings.Contains(lower, "builtin"),
		strings.Contains(lower, "internal"):
		return KindBuiltIn
	default:
		return KindUnknown
	}
}

// SelectInput picks the preferred capture device: USB-class audio over
// headset over built-in over first available. Ties keep enumeration
// order. Returns nil only for an empty candidate list.
func SelectInput(candidates []Descriptor) *Descriptor {
	return collections.MinBy(candidates, func(a, b Descriptor) bool {
		return a.Kind.rank() < b.Kind.rank()
	})
}

// ResolveChannelCount returns the channel count to record with.
// Single-channel mode always records one channel. Multitrack mode
// records the device's full capability; a device that cannot do better
// than one channel degrades to 1 with degraded set, which callers
// surface as a warning, not an error.
func ResolveChannelCount(multitrack bool, d Descriptor) (count int, degraded bool) {
	if !multitrack {
		return 1, false
	}

	if d.MaxChannels > 1 {
		return d.MaxChannels, false
	}

	return 1, true
}

// Enumerator lists the capture devices currently available.
type Enumerator interface {
	EnumerateDevices(ctx context.Context) ([]Descriptor, error)
}

// SystemEnumerator enumerates the host's capture devices through
// miniaudio.
type SystemEnumerator struct{}

func (SystemEnumerator) EnumerateDevices(ctx context.Context) ([]Descriptor, error) {
	// Initialize an empty context. AFAICT this is fine for just
	// enumrating the available devices.
	devCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	defer uninitializeContext(devCtx)

	captureDevices, err := devCtx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to get capture devices: %w", err)
	}

	return collections.Apply(captureDevices, descriptorFromInfo), nil
}

func descriptorFromInfo(mdi malgo.DeviceInfo) Descriptor {
	name := mdi.Name()
	formats := dataFormats(mdi)

	maxCh := 0
	rate := 0
	for _, mf := range formats {
		if int(mf.Channels) > maxCh {
			maxCh = int(mf.Channels)
			rate = int(mf.SampleRate)
		}
	}
	if maxCh == 0 {
		maxCh = 1
	}
	if rate == 0 {
		rate = DefaultSampleRate
	}

	return Descriptor{
		ID:          mdi.ID,
		Name:        name,
		Kind:        ClassifyKind(name),
		IsDefault:   mdi.IsDefault != 0,
		MaxChannels: maxCh,
		SampleRate:  rate,
		Formats:     collections.Apply(formats, formatString),
	}
}

// dataFormats returns the device's reported formats bounded by
// FormatCount.
func dataFormats(mdi malgo.DeviceInfo) []malgo.DataFormat {
	n := int(mdi.FormatCount)
	if n > len(mdi.Formats) {
		n = len(mdi.Formats)
	}
	return mdi.Formats[:n]
}

func formatString(mf malgo.DataFormat) string {
	return fmt.Sprintf("(SampleSizeBytes: %d, Channels: %d, SampleRate: %d)",
		malgo.SampleSizeInBytes(mf.Format),
		mf.Channels, mf.SampleRate)
}

// Negotiator resolves which device and channel count a recording
// should use. It never caches a selection: every Negotiate call
// re-enumerates, so hardware route changes are picked up by simply
// calling it again. The only state kept is the last resolved channel
// count, used to fire the count-changed notification.
type Negotiator struct {
	enum Enumerator

	mu            sync.Mutex
	onCountChange func(count int)
	lastCount     int
}

func NewNegotiator(enum Enumerator) *Negotiator {
	return &Negotiator{enum: enum}
}

// Devices lists the capture devices currently available.
func (n *Negotiator) Devices(ctx context.Context) ([]Descriptor, error) {
	return n.enum.EnumerateDevices(ctx)
}

// OnChannelCountChanged registers the hot-plug notification hook.
// The callback fires from inside Negotiate whenever the resolved count
// differs from the previous resolution.
func (n *Negotiator) OnChannelCountChanged(fn func(count int)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onCountChange = fn
}

// Negotiate enumerates capture devices, selects the preferred input
// and resolves the channel count for the requested mode.
func (n *Negotiator) Negotiate(ctx context.Context, multitrack bool) (Descriptor, int, error) {
	devices, err := n.enum.EnumerateDevices(ctx)
	if err != nil {
		return Descriptor{}, 0, fmt.Errorf("failed to enumerate capture devices: %w", err)
	}

	selected := SelectInput(devices)
	if selected == nil {
		return Descriptor{}, 0, ErrNoInputDevice
	}

	count, degraded := ResolveChannelCount(multitrack, *selected)
	if degraded {
		slog.Warn("multichannel recording not honored by hardware, falling back to one channel",
			"device", selected.Name,
			"maxChannels", selected.MaxChannels)
	}

	slog.Debug("negotiated capture input",
		"device", selected.Name,
		"kind", selected.Kind.String(),
		"channels", count,
		"sampleRate", selected.SampleRate)

	n.mu.Lock()
	changed := n.lastCount != 0 && n.lastCount != count
	n.lastCount = count
	fn := n.onCountChange
	n.mu.Unlock()

	if changed && fn != nil {
		fn(count)
	}

	return *selected, count, nil
}
