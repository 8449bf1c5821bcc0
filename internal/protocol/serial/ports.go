// internal/protocol/serial/ports.go
package serial

import (
	"fmt"
	"sort"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"ffb-control-service/internal/model"
)

// Enumerator lists the serial ports present on the host
type Enumerator interface {
	ListPorts() ([]model.PortInfo, error)
}

// SystemEnumerator reads the port list from the operating system
type SystemEnumerator struct {
	boards *BoardDatabase
	logger *zap.Logger
}

// NewSystemEnumerator creates an enumerator for the local host
func NewSystemEnumerator(logger *zap.Logger) *SystemEnumerator {
	return &SystemEnumerator{
		boards: NewBoardDatabase(),
		logger: logger.With(zap.String("scanner", "serial")),
	}
}

// ListPorts returns every port sorted by name. USB details are attached when
// the platform exposes them; a failing detail lookup only loses the details.
func (e *SystemEnumerator) ListPorts() ([]model.PortInfo, error) {
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports: %w", err)
	}

	details := map[string]*enumerator.PortDetails{}
	detailed, err := enumerator.GetDetailedPortsList()
	if err != nil {
		e.logger.Debug("USB port details unavailable", zap.Error(err))
	}
	for _, d := range detailed {
		details[d.Name] = d
	}

	ports := make([]model.PortInfo, 0, len(names))
	for _, name := range names {
		info := model.PortInfo{Name: name}
		if d, ok := details[name]; ok && d.IsUSB {
			info.IsUSB = true
			info.VID = strings.ToUpper(d.VID)
			info.PID = strings.ToUpper(d.PID)
			info.Product = d.Product
			info.SerialNumber = d.SerialNumber
			if board := e.boards.Lookup(info.VID, info.PID); board != nil {
				info.Board = board.Model
				info.Bootloader = board.Bootloader
			}
		}
		ports = append(ports, info)
	}

	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })

	e.logger.Debug("Serial ports listed", zap.Int("count", len(ports)))
	return ports, nil
}
