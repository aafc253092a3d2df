package capture

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/vocalcoach/internal/errors"
	"github.com/tphakala/vocalcoach/internal/logger"
)

// DeviceInfo describes an input device
type DeviceInfo struct {
	Index            int    `json:"index"`
	ID               string `json:"id"` // decoded backend ID
	Name             string `json:"name"`
	MaxInputChannels int    `json:"max_input_channels"`
	IsDefault        bool   `json:"is_default"`
}

// String renders the device the way the devices command prints it
func (d DeviceInfo) String() string {
	def := ""
	if d.IsDefault {
		def = " (default)"
	}
	return fmt.Sprintf("%d: %s [%s] channels=%d%s", d.Index, d.Name, d.ID, d.MaxInputChannels, def)
}

// EnumerateFunc lists input devices
type EnumerateFunc func() ([]DeviceInfo, error)

const (
	devicesCacheKey        = "capture-devices"
	defaultCatalogCacheTTL = 30 * time.Second
)

// Catalog lists input devices, caching results so repeated listings do not
// re-initialize the audio backend.
type Catalog struct {
	enumerate EnumerateFunc
	cache     *cache.Cache
	mu        sync.Mutex
}

// NewCatalog creates a catalog over enumerate. A nil enumerate uses the
// malgo backend; ttl <= 0 uses the default of 30 seconds.
func NewCatalog(enumerate EnumerateFunc, ttl time.Duration) *Catalog {
	if enumerate == nil {
		enumerate = EnumerateDevices
	}
	if ttl <= 0 {
		ttl = defaultCatalogCacheTTL
	}
	return &Catalog{
		enumerate: enumerate,
		cache:     cache.New(ttl, 0),
	}
}

// List returns the available input devices
func (c *Catalog) List() ([]DeviceInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.cache.Get(devicesCacheKey); ok {
		if devices, ok := cached.([]DeviceInfo); ok {
			return append([]DeviceInfo(nil), devices...), nil
		}
	}

	devices, err := c.enumerate()
	if err != nil {
		return nil, err
	}
	c.cache.Set(devicesCacheKey, devices, cache.DefaultExpiration)
	GetLogger().Debug("enumerated input devices", logger.Int("count", len(devices)))

	return append([]DeviceInfo(nil), devices...), nil
}

// Invalidate drops cached results
func (c *Catalog) Invalidate() {
	c.cache.Delete(devicesCacheKey)
}

// Select lists devices and resolves spec with SelectDevice
func (c *Catalog) Select(spec string) (DeviceInfo, error) {
	devices, err := c.List()
	if err != nil {
		return DeviceInfo{}, err
	}
	return SelectDevice(devices, spec)
}

// SelectDevice resolves spec against devices. Matching order: empty or
// "default" selects the default device (or the first one); a number selects
// by index; then exact name, decoded ID and case-insensitive substring.
func SelectDevice(devices []DeviceInfo, spec string) (DeviceInfo, error) {
	if len(devices) == 0 {
		return DeviceInfo{}, errors.New(fmt.Errorf("%w: no capture devices available", ErrNoInputDevice)).
			Component(componentCapture).
			Category(errors.CategoryAudioSource).
			Context("operation", "select_device").
			Build()
	}

	spec = strings.TrimSpace(spec)
	if spec == "" || spec == "default" || spec == "sysdefault" {
		for i := range devices {
			if devices[i].IsDefault {
				return devices[i], nil
			}
		}
		return devices[0], nil
	}

	if idx, err := strconv.Atoi(spec); err == nil {
		for i := range devices {
			if devices[i].Index == idx {
				return devices[i], nil
			}
		}
	}

	for i := range devices {
		if devices[i].Name == spec {
			return devices[i], nil
		}
	}

	for i := range devices {
		if devices[i].ID == spec {
			return devices[i], nil
		}
	}

	lower := strings.ToLower(spec)
	for i := range devices {
		if strings.Contains(strings.ToLower(devices[i].Name), lower) {
			return devices[i], nil
		}
	}

	return DeviceInfo{}, errors.New(fmt.Errorf("%w: no device matches %q", ErrNoInputDevice, spec)).
		Component(componentCapture).
		Category(errors.CategoryAudioSource).
		Context("device", spec).
		Context("available_devices", len(devices)).
		Build()
}

// hexToASCII converts a hexadecimal string to an ASCII string
func hexToASCII(hexStr string) (string, error) {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\x00"), nil
}
