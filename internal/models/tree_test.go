package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/opencanopy/living-forest/internal/models"
)

func TestTreeStatus_IsValid(t *testing.T) {
	assert.True(t, models.TreeStatusHealthy.IsValid())
	assert.True(t, models.TreeStatusNeedsAttention.IsValid())
	assert.True(t, models.TreeStatusCritical.IsValid())

	assert.False(t, models.TreeStatus("").IsValid())
	assert.False(t, models.TreeStatus("glowing").IsValid())
	assert.False(t, models.TreeStatus("Healthy").IsValid())
}

func TestTreeStatus_Label(t *testing.T) {
	assert.Equal(t, "Thriving", models.TreeStatusHealthy.Label())
	assert.Equal(t, "Needs care", models.TreeStatusNeedsAttention.Label())
	assert.Equal(t, "Urgent", models.TreeStatusCritical.Label())

	// Unknown statuses fall back to their raw value.
	assert.Equal(t, "glowing", models.TreeStatus("glowing").Label())
}

func TestTreeRecord_IsNew(t *testing.T) {
	uploaded := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	record := models.TreeRecord{UploadedAt: uploaded}

	assert.True(t, record.IsNew(uploaded))
	assert.True(t, record.IsNew(uploaded.Add(models.NewTreeWindow-time.Millisecond)))
	assert.False(t, record.IsNew(uploaded.Add(models.NewTreeWindow)))
	assert.False(t, record.IsNew(uploaded.Add(time.Hour)))

	// Clock skew behind the upload time never counts as new.
	assert.False(t, record.IsNew(uploaded.Add(-time.Second)))
}

func TestTreeRecord_HasCoordinate(t *testing.T) {
	placed := models.TreeRecord{Coordinate: &models.Coordinate{Lat: 12.1, Lng: 80.1}}
	unplaced := models.TreeRecord{}

	assert.True(t, placed.HasCoordinate())
	assert.False(t, unplaced.HasCoordinate())
}
