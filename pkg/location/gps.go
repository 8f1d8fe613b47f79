package location

import (
	"bufio"
	"errors"
	"strings"

	"github.com/adrianmo/go-nmea"
	"github.com/tarm/serial"
)

// FixReader provides the device's own position, for field submissions made
// next to the tree being registered.
type FixReader interface {
	ReadFix() (Coordinate, error)
}

// DeviceSensorProvider reads the current position from a GPS device
// connected via serial port.
type DeviceSensorProvider struct {
	port     string // Serial port to which the GPS device is connected
	baudRate int    // Baud rate for the serial communication
}

// NewDeviceSensorProvider creates a new DeviceSensorProvider with the specified port and baud rate.
func NewDeviceSensorProvider(port string, baudRate int) *DeviceSensorProvider {
	return &DeviceSensorProvider{
		port:     port,
		baudRate: baudRate,
	}
}

// ReadFix reads GPS data from the device and returns the current position.
func (d *DeviceSensorProvider) ReadFix() (Coordinate, error) {
	c := &serial.Config{Name: d.port, Baud: d.baudRate}
	s, err := serial.OpenPort(c)
	if err != nil {
		return Coordinate{}, err
	}
	defer s.Close()

	scanner := bufio.NewScanner(s)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "$GPGGA") { // Check for GGA sentences
			sentence, err := nmea.Parse(line)
			if err != nil {
				return Coordinate{}, err
			}

			if gga, ok := sentence.(nmea.GGA); ok {
				return Coordinate{
					Lat: gga.Latitude,
					Lng: gga.Longitude,
				}, nil
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return Coordinate{}, err
	}

	return Coordinate{}, errors.New("no valid GPS data found")
}
