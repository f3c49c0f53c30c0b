//go:build !nogpu

package native

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/gg-capture/transfer"
)

// nopHandler is the backend logger until SetLogger is called.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// Backend names accepted by Open.
const (
	BackendVulkan = "vulkan"
	BackendNoop   = "noop"
)

// Config selects the HAL backend opened by Open.
type Config struct {
	// Backend is BackendVulkan or BackendNoop. Empty selects Vulkan.
	Backend string

	// Adapter picks the first adapter whose name contains this string.
	// Empty prefers a discrete, then an integrated GPU.
	Adapter string
}

// Open creates a standalone HAL device and returns a Graphics that owns it.
func Open(cfg Config) (*Graphics, error) {
	var (
		instance hal.Instance
		err      error
	)
	switch strings.ToLower(cfg.Backend) {
	case "", BackendVulkan:
		backend, ok := hal.GetBackend(gputypes.BackendVulkan)
		if !ok {
			return nil, fmt.Errorf("%w: vulkan not available", ErrNoGPU)
		}
		instance, err = backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	case BackendNoop:
		api := noop.API{}
		instance, err = api.CreateInstance(nil)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("native: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoGPU
	}
	selected := selectAdapter(adapters, cfg.Adapter)
	if selected == nil {
		instance.Destroy()
		return nil, fmt.Errorf("%w: no adapter matches %q", ErrNoGPU, cfg.Adapter)
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("native: open device: %w", err)
	}
	info := transfer.AdapterInfo{Vendor: selected.Info.Vendor, Renderer: selected.Info.Name}
	g, err := newGraphics(openDev.Device, openDev.Queue, info, func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	if err != nil {
		openDev.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	return g, nil
}

func selectAdapter(adapters []hal.ExposedAdapter, name string) *hal.ExposedAdapter {
	if name != "" {
		for i := range adapters {
			if strings.Contains(adapters[i].Info.Name, name) {
				return &adapters[i]
			}
		}
		return nil
	}
	for _, want := range []gputypes.DeviceType{gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU} {
		for i := range adapters {
			if adapters[i].Info.DeviceType == want {
				return &adapters[i]
			}
		}
	}
	return &adapters[0]
}

// NewFromProvider returns a Graphics on the device of a host application,
// for example a gogpu window. The provider must expose its HAL device and
// queue; the device is not destroyed by Close.
func NewFromProvider(provider gpucontext.DeviceProvider, info transfer.AdapterInfo) (*Graphics, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHAL)
	}
	return newGraphics(device, queue, info, nil)
}
