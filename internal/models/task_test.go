package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStatusIsTerminal(t *testing.T) {
	assert.False(t, StatusWaiting.IsTerminal())
	assert.False(t, StatusInProgress.IsTerminal())
	assert.True(t, StatusSuccess.IsTerminal())
	assert.True(t, StatusFailure.IsTerminal())
}

func TestNewDeviceTaskSummary(t *testing.T) {
	devices := []DeviceItem{
		{ThingName: "t1", Type: "device", ProvisioningTemplate: "tmpl-a", Status: StatusSuccess, StatusMessage: "stale"},
		{ThingName: "t2", Type: "core", ProvisioningTemplate: "tmpl-b"},
	}

	task := NewDeviceTaskSummary("group-1", devices)

	assert.NotEmpty(t, task.TaskID)
	assert.Equal(t, "group-1", task.GroupName)
	assert.Equal(t, StatusWaiting, task.Status)
	require.Len(t, task.Devices, 2)
	for _, d := range task.Devices {
		assert.Equal(t, StatusWaiting, d.Status, "device %s", d.ThingName)
		assert.Empty(t, d.StatusMessage)
	}

	// Task ids must be unique across tasks.
	other := NewDeviceTaskSummary("group-1", devices)
	assert.NotEqual(t, task.TaskID, other.TaskID)
}

func TestDeviceTaskSummaryDevice(t *testing.T) {
	task := NewDeviceTaskSummary("group-1", []DeviceItem{
		{ThingName: "t1", Type: "device", ProvisioningTemplate: "tmpl-a"},
	})

	device := task.Device("t1")
	require.NotNil(t, device)

	// The lookup returns a live pointer into the task.
	device.Fail("boom")
	assert.Equal(t, StatusFailure, task.Devices[0].Status)

	assert.Nil(t, task.Device("missing"))
}

func TestDeviceItemFailKeepsFirstMessage(t *testing.T) {
	d := &DeviceItem{ThingName: "t1", Status: StatusInProgress}

	d.Fail("first failure")
	d.Fail("second failure")

	assert.Equal(t, StatusFailure, d.Status)
	assert.Equal(t, "first failure", d.StatusMessage)
}

func TestGroupItemFailTaskKeepsFirstMessage(t *testing.T) {
	g := &GroupItem{Name: "group-1", TaskStatus: StatusInProgress}

	g.FailTask("first failure")
	g.FailTask("second failure")

	assert.Equal(t, StatusFailure, g.TaskStatus)
	assert.Equal(t, "first failure", g.StatusMessage)
}
