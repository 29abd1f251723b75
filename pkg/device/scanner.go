package device

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/emergingrobotics/remote-offload/pkg/driver"
)

// NodeInfo describes a discovered hardware device node
type NodeInfo struct {
	Path  string
	Name  string
	Index int
}

// DeviceScanner scans for accelerator device nodes
type DeviceScanner struct {
	sysfsPath string
	devPath   string
}

// NewScanner creates a scanner over the default sysfs class and /dev
func NewScanner() *DeviceScanner {
	return &DeviceScanner{
		sysfsPath: "/sys/class/hailo_chardev",
		devPath:   "/dev",
	}
}

// NewScannerAt creates a scanner rooted at custom sysfs and dev directories
func NewScannerAt(sysfsPath, devPath string) *DeviceScanner {
	return &DeviceScanner{sysfsPath: sysfsPath, devPath: devPath}
}

// Scan finds all device nodes, sorted by index
func (s *DeviceScanner) Scan() ([]NodeInfo, error) {
	if s.sysfsPath == "" {
		s.sysfsPath = "/sys/class/hailo_chardev"
	}
	if s.devPath == "" {
		s.devPath = "/dev"
	}

	var nodes []NodeInfo

	// sysfs first, it only lists nodes the driver actually created
	entries, err := os.ReadDir(s.sysfsPath)
	if err == nil {
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			if node, ok := s.node(entry.Name()); ok {
				nodes = append(nodes, node)
			}
		}
	}

	if len(nodes) == 0 {
		for i := 0; i < 16; i++ {
			if node, ok := s.node(fmt.Sprintf("hailo%d", i)); ok {
				nodes = append(nodes, node)
			}
		}
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Index < nodes[j].Index })
	return nodes, nil
}

func (s *DeviceScanner) node(name string) (NodeInfo, bool) {
	index, ok := nodeIndex(name)
	if !ok {
		return NodeInfo{}, false
	}
	path := filepath.Join(s.devPath, name)
	if _, err := os.Stat(path); err != nil {
		return NodeInfo{}, false
	}
	return NodeInfo{Path: path, Name: name, Index: index}, true
}

// nodeIndex extracts N from "hailoN"
func nodeIndex(name string) (int, bool) {
	digits := strings.TrimPrefix(name, "hailo")
	if digits == name || digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Scan uses the default scanner to find all device nodes
func Scan() ([]NodeInfo, error) {
	return NewScanner().Scan()
}

// SimulatedKinds are the device types served by the in-process simulator
var SimulatedKinds = []string{driver.SimulatorKind, "VPUX"}

// OpenOptions configures Open
type OpenOptions struct {
	Simulator driver.SimulatorConfig
	Scanner   *DeviceScanner
}

// Open returns the subsystem for the device named by sel together with the
// index it answers to. Simulated kinds expose a single device.
func Open(sel Selector, opts OpenOptions) (driver.Subsystem, int, error) {
	for _, kind := range SimulatedKinds {
		if !sel.MatchesKind(kind) {
			continue
		}
		index := sel.Index
		if index == AnyIndex {
			index = 0
		}
		cfg := opts.Simulator
		cfg.Kind = kind
		return driver.NewSimulator(cfg), index, nil
	}

	if !sel.MatchesKind(driver.HardwareKind) {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnknownDeviceType, sel.Kind)
	}

	scanner := opts.Scanner
	if scanner == nil {
		scanner = NewScanner()
	}
	nodes, err := scanner.Scan()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan devices: %w", err)
	}
	if len(nodes) == 0 {
		return nil, 0, ErrNoDevices
	}

	node := nodes[0]
	if sel.Index != AnyIndex {
		found := false
		for _, n := range nodes {
			if n.Index == sel.Index {
				node, found = n, true
				break
			}
		}
		if !found {
			return nil, 0, fmt.Errorf("%w: no device %s", ErrNoDevices, sel)
		}
	}

	hw, err := driver.OpenHardware(node.Path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open device: %w", err)
	}
	return hw, node.Index, nil
}

// OpenManager opens the device named by sel and wraps it in a Manager
func OpenManager(sel Selector, opts OpenOptions, mopts ...ManagerOption) (*Manager, error) {
	sub, index, err := Open(sel, opts)
	if err != nil {
		return nil, err
	}
	return NewManager(sub, append(mopts, WithDeviceIndex(index))...), nil
}
