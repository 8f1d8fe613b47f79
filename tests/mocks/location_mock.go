package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/opencanopy/living-forest/pkg/location"
)

// MockGeocoder is a mock implementation of the location.Geocoder interface
type MockGeocoder struct {
	mock.Mock
}

func (m *MockGeocoder) Geocode(ctx context.Context, address string) (location.Coordinate, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(location.Coordinate), args.Error(1)
}

// MockFixReader is a mock implementation of the location.FixReader interface
type MockFixReader struct {
	mock.Mock
}

func (m *MockFixReader) ReadFix() (location.Coordinate, error) {
	args := m.Called()
	return args.Get(0).(location.Coordinate), args.Error(1)
}
