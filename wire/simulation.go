package wire

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// SimulationConfig controls the realism of the simulated radio
type SimulationConfig struct {
	// Radio characteristics
	EnableRSSI   bool // Default: true
	BaseRSSI     int  // Default: -50 dBm at 1m
	RSSIVariance int  // Default: 6 dBm
	NoiseFloor   int  // Default: -110 dBm, used to derive SNR

	// Packet loss
	PacketLossRate float64 // Default: 0.01

	// Delivery delay in milliseconds (async medium only)
	MinDelay int // Default: 1ms
	MaxDelay int // Default: 20ms

	// Deterministic mode for testing
	Deterministic bool
	Seed          int64
}

// DefaultSimulationConfig returns realistic radio parameters
func DefaultSimulationConfig() *SimulationConfig {
	return &SimulationConfig{
		EnableRSSI:     true,
		BaseRSSI:       -50,
		RSSIVariance:   6,
		NoiseFloor:     -110,
		PacketLossRate: 0.01,
		MinDelay:       1,
		MaxDelay:       20,
	}
}

// PerfectSimulationConfig returns a lossless, jitter-free config for tests.
// RSSI still falls off with distance so strongest-booth selection is testable.
func PerfectSimulationConfig() *SimulationConfig {
	cfg := DefaultSimulationConfig()
	cfg.RSSIVariance = 0
	cfg.PacketLossRate = 0
	cfg.MinDelay = 0
	cfg.MaxDelay = 0
	cfg.Deterministic = true
	return cfg
}

// Simulator draws loss, RSSI and delay values. Safe for concurrent use.
type Simulator struct {
	config *SimulationConfig
	mu     sync.Mutex
	rng    *rand.Rand
}

// NewSimulator creates a new radio simulator
func NewSimulator(config *SimulationConfig) *Simulator {
	if config == nil {
		config = DefaultSimulationConfig()
	}

	var rng *rand.Rand
	if config.Deterministic {
		rng = rand.New(rand.NewSource(config.Seed))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Simulator{
		config: config,
		rng:    rng,
	}
}

// ShouldPacketSucceed returns true if a frame survives the air
func (s *Simulator) ShouldPacketSucceed() bool {
	if s.config.PacketLossRate <= 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() >= s.config.PacketLossRate
}

// GenerateRSSI returns an RSSI for a frame travelling distance meters
func (s *Simulator) GenerateRSSI(distance float64) int16 {
	if !s.config.EnableRSSI {
		return int16(s.config.BaseRSSI)
	}
	if distance < 1 {
		distance = 1
	}

	// Free space path loss (simplified): ~20dB per 10x distance
	rssi := float64(s.config.BaseRSSI) - 20*math.Log10(distance)

	if s.config.RSSIVariance > 0 {
		s.mu.Lock()
		variance := s.rng.Intn(s.config.RSSIVariance*2) - s.config.RSSIVariance
		s.mu.Unlock()
		rssi += float64(variance)
	}

	if rssi < -120 {
		rssi = -120
	} else if rssi > -20 {
		rssi = -20
	}
	return int16(rssi)
}

// SNR derives a signal-to-noise ratio from rssi
func (s *Simulator) SNR(rssi int16) int8 {
	snr := int(rssi) - s.config.NoiseFloor
	if snr > math.MaxInt8 {
		snr = math.MaxInt8
	} else if snr < math.MinInt8 {
		snr = math.MinInt8
	}
	return int8(snr)
}

// DeliveryDelay returns the air time before a frame arrives
func (s *Simulator) DeliveryDelay() time.Duration {
	if s.config.MaxDelay <= s.config.MinDelay {
		return time.Duration(s.config.MinDelay) * time.Millisecond
	}
	s.mu.Lock()
	delay := s.config.MinDelay + s.rng.Intn(s.config.MaxDelay-s.config.MinDelay)
	s.mu.Unlock()
	return time.Duration(delay) * time.Millisecond
}
