package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of an association task
// or of a single device within one.
type TaskStatus string

const (
	StatusWaiting    TaskStatus = "Waiting"
	StatusInProgress TaskStatus = "InProgress"
	StatusSuccess    TaskStatus = "Success"
	StatusFailure    TaskStatus = "Failure"
)

// IsTerminal reports whether the status is a final state.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// DeviceItem represents one device within an association task.
type DeviceItem struct {
	ThingName            string     `json:"thingName" dynamodbav:"ThingName"`
	Type                 string     `json:"type" dynamodbav:"Type"` // "core" or "device"
	ProvisioningTemplate string     `json:"provisioningTemplate" dynamodbav:"ProvisioningTemplate"`
	GroupName            string     `json:"groupName,omitempty" dynamodbav:"GroupName,omitempty"`
	Status               TaskStatus `json:"status" dynamodbav:"Status"`
	StatusMessage        string     `json:"statusMessage,omitempty" dynamodbav:"StatusMessage,omitempty"`
	ThingArn             string     `json:"thingArn,omitempty" dynamodbav:"ThingArn,omitempty"`
	CertificateArn       string     `json:"certificateArn,omitempty" dynamodbav:"CertificateArn,omitempty"`
	CreatedAt            time.Time  `json:"createdAt,omitempty" dynamodbav:"-"`
	UpdatedAt            time.Time  `json:"updatedAt,omitempty" dynamodbav:"-"`
}

// Fail marks this device as failed with a message. The first recorded
// message is kept if the device has already failed.
func (d *DeviceItem) Fail(message string) {
	if d.Status == StatusFailure {
		return
	}
	d.Status = StatusFailure
	d.StatusMessage = message
}

// DeviceTaskSummary is the domain model for one device-association task,
// tracked end-to-end with per-device statuses.
type DeviceTaskSummary struct {
	TaskID    string
	GroupName string
	Status    TaskStatus
	Devices   []DeviceItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewDeviceTaskSummary builds a fresh Waiting task for the given group
// and devices, with a generated task id and all devices Waiting.
func NewDeviceTaskSummary(groupName string, devices []DeviceItem) *DeviceTaskSummary {
	now := time.Now().UTC()
	items := make([]DeviceItem, len(devices))
	for i, d := range devices {
		d.Status = StatusWaiting
		d.StatusMessage = ""
		items[i] = d
	}
	return &DeviceTaskSummary{
		TaskID:    uuid.New().String(),
		GroupName: groupName,
		Status:    StatusWaiting,
		Devices:   items,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Device returns a pointer to the device with the given thing name, or nil.
func (t *DeviceTaskSummary) Device(thingName string) *DeviceItem {
	for i := range t.Devices {
		if t.Devices[i].ThingName == thingName {
			return &t.Devices[i]
		}
	}
	return nil
}
